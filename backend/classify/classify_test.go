// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltmail/moltmail/backend/models"
)

func TestClassify_Grammar(t *testing.T) {
	cases := []struct {
		in     string
		stream models.Stream
		reject models.RejectReason
	}{
		{"alice", models.StreamSovereign, models.RejectNone},
		{"alice@moltmail.net", models.StreamSovereign, models.RejectNone},
		{"Alice", models.StreamSovereign, models.RejectNone}, // lowered
		{"my-name", models.StreamSovereign, models.RejectNone},
		{"a.b.c", models.StreamSovereign, models.RejectNone}, // >1 dot falls through to flat form
		{"ab_", models.StreamAgent, models.RejectNone},
		{"helper-bot_", models.StreamAgent, models.RejectNone},
		{"punks.7421", models.StreamNFTCollection, models.RejectNone},
		{"alice.bob", models.StreamSocialPair, models.RejectNone},
		{"alice.bob_", models.StreamSocialPair, models.RejectNone},
		{"punks.7421_", models.StreamNFTCollection, models.RejectNone},

		{"bob.4a2", models.StreamUnknown, models.RejectMixedSegment},
		{"bob.a4", models.StreamUnknown, models.RejectMixedSegment},
		{"bob.4a2_", models.StreamUnknown, models.RejectMixedSegment},
		{"ab", models.StreamUnknown, models.RejectInvalidFormat},
		{"-alice", models.StreamUnknown, models.RejectInvalidFormat},
		{"alice-", models.StreamUnknown, models.RejectInvalidFormat},
		{"ali--ce", models.StreamUnknown, models.RejectInvalidFormat},
		{"a..b.c", models.StreamUnknown, models.RejectInvalidFormat},
		{"al_ice", models.StreamUnknown, models.RejectInvalidFormat},
		{"ALI CE", models.StreamUnknown, models.RejectInvalidFormat},
		{"", models.StreamUnknown, models.RejectUnknownShape},
		{".", models.StreamUnknown, models.RejectInvalidFormat},
		{"bob.#42", models.StreamUnknown, models.RejectUnknownShape},
		{"42.bob", models.StreamUnknown, models.RejectUnknownShape},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := Classify(tc.in)
			assert.Equal(t, tc.stream, got.Stream, "stream for %q", tc.in)
			assert.Equal(t, tc.reject, got.Reject, "reject reason for %q", tc.in)
			if tc.reject != models.RejectNone {
				assert.True(t, got.Rejected())
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		require.Equal(t, Classify("punks.7421"), Classify("punks.7421"))
		require.Equal(t, Classify("bob.4a2"), Classify("bob.4a2"))
	}
}

func TestClassify_NFTFields(t *testing.T) {
	c := Classify("punks.7421@moltmail.net")
	require.Equal(t, models.StreamNFTCollection, c.Stream)
	assert.Equal(t, "punks", c.Collection)
	assert.Equal(t, "7421", c.TokenID)
	assert.Equal(t, "punks.7421", c.IdentityName)
}

func TestClassify_SocialPairFields(t *testing.T) {
	c := Classify("alice.bob")
	require.Equal(t, models.StreamSocialPair, c.Stream)
	assert.Equal(t, []string{"alice", "bob"}, c.SocialPair)
	assert.Equal(t, "alice.bob", c.IdentityName)
	assert.False(t, c.AgentMarker)
}

func TestClassify_AgentMarkerStripped(t *testing.T) {
	c := Classify("ab_")
	require.Equal(t, models.StreamAgent, c.Stream)
	assert.Equal(t, "ab", c.IdentityName)
	assert.True(t, c.AgentMarker)
}

// The marker is reserved: it can never appear inside a sovereign name.
func TestClassify_MarkerReservedInSovereign(t *testing.T) {
	c := Classify("al_ice")
	assert.Equal(t, models.RejectInvalidFormat, c.Reject)
	assert.True(t, c.Rejected())
}
