// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

// Stream identifies which identity stream a recipient address belongs to.
type Stream string

const (
	StreamAgent         Stream = "agent"
	StreamSovereign     Stream = "sovereign"
	StreamSocialPair    Stream = "social-pair"
	StreamNFTCollection Stream = "nft-collection"
	StreamUnknown       Stream = "unknown"
)

// RejectReason distinguishes why an address was refused. InvalidFormat
// is a charset/shape violation on an otherwise-recognized stream;
// MixedSegment is the anti-spoof gate on dotted names; UnknownShape is
// everything else.
type RejectReason string

const (
	RejectNone          RejectReason = ""
	RejectMixedSegment  RejectReason = "mixed-alnum-segment"
	RejectInvalidFormat RejectReason = "invalid-format"
	RejectUnknownShape  RejectReason = "unknown-shape"
)

// Classification is the derived typed view of a raw recipient address.
// It is recomputed per request and never persisted.
type Classification struct {
	Stream       Stream       `json:"stream"`
	LocalPart    string       `json:"local_part"`
	IdentityName string       `json:"identity_name,omitempty"`
	Collection   string       `json:"collection,omitempty"`
	TokenID      string       `json:"token_id,omitempty"`
	SocialPair   []string     `json:"social_pair,omitempty"`
	AgentMarker  bool         `json:"agent_marker,omitempty"`
	Reject       RejectReason `json:"reject_reason,omitempty"`
}

// Rejected reports whether the address must not be accepted for delivery.
func (c Classification) Rejected() bool {
	return c.Stream == StreamUnknown || c.Reject != RejectNone
}
