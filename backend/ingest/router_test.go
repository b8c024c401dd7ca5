// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltmail/moltmail/backend/audit"
	"github.com/moltmail/moltmail/backend/config"
	"github.com/moltmail/moltmail/backend/ecies"
	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/storage/kv"
	"github.com/moltmail/moltmail/backend/storage/kvstore"
	"github.com/moltmail/moltmail/backend/tier"
)

type fixedOracle struct {
	owner string
	err   error
}

func (f *fixedOracle) VerifyOwner(context.Context, string, string) (string, error) {
	return f.owner, f.err
}

type fakePinner struct {
	cid  string
	fail bool
}

func (f *fakePinner) Pin(context.Context, string, []byte) (string, error) {
	if f.fail {
		return "", errors.New("pinning service down")
	}
	return f.cid, nil
}

func newTestRouter(t *testing.T) (*Router, *kvstore.Store, *tier.Machine) {
	t.Helper()
	store := kvstore.New(kv.NewMemoryClient(nil), 100)
	cfg := config.NewForTesting()
	machine := tier.NewMachine(store, cfg)
	auditor := audit.NewEngine(store, zerolog.Nop())
	router := NewRouter(store, machine, auditor, zerolog.Nop())
	return router, store, machine
}

func inbound(to string) *models.InboundMessage {
	return &models.InboundMessage{
		To:      to,
		From:    "sender@example.com",
		Subject: "hello",
		Body:    "message body",
	}
}

func TestHandle_RejectedAddressNeverStored(t *testing.T) {
	ctx := context.Background()
	router, store, _ := newTestRouter(t)

	_, err := router.Handle(ctx, inbound("bob.4a2"))
	assert.ErrorIs(t, err, ErrRejectedAddress)

	envs, err := store.GetAll(ctx, "bob.4a2")
	require.NoError(t, err)
	assert.Empty(t, envs)
}

func TestHandle_UnknownSovereignRejected(t *testing.T) {
	ctx := context.Background()
	router, _, _ := newTestRouter(t)

	_, err := router.Handle(ctx, inbound("alice"))
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestHandle_AgentMarkerAutoProvisions(t *testing.T) {
	ctx := context.Background()
	router, store, machine := newTestRouter(t)

	// The marker authorizes provisioning and is stripped from the
	// stored identity name.
	env, err := router.Handle(ctx, inbound("helper_"))
	require.NoError(t, err)
	assert.Equal(t, "helper", env.Recipient)

	rec, err := machine.Lookup(ctx, "helper")
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, rec.Tier)

	envs, err := store.GetAll(ctx, "helper")
	require.NoError(t, err)
	require.Len(t, envs, 1)
}

func TestHandle_EncryptedWhenKeyRegistered(t *testing.T) {
	ctx := context.Background()
	router, store, machine := newTestRouter(t)

	pub, privStr, err := ecies.GenerateKeyPair()
	require.NoError(t, err)
	_, _, err = machine.Provision(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, store.RegisterPublicKey(ctx, "alice", pub))

	msg := inbound("alice")
	env, err := router.Handle(ctx, msg)
	require.NoError(t, err)

	assert.Equal(t, models.EnvelopeEncrypted, env.Kind)
	require.NotNil(t, env.Sealed)
	assert.Empty(t, env.Plaintext)
	// Header fields are stripped once sealed.
	assert.Empty(t, env.From)
	assert.Empty(t, env.Subject)

	priv, err := ecies.DecodePrivateKey(privStr)
	require.NoError(t, err)
	plain, err := ecies.Decrypt(env.Sealed, priv, env.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, models.CanonicalPlaintext(msg.From, msg.Subject, msg.Body), string(plain))
}

func TestHandle_RecoveryDualSeal(t *testing.T) {
	ctx := context.Background()
	router, store, machine := newTestRouter(t)

	pub, _, err := ecies.GenerateKeyPair()
	require.NoError(t, err)
	recPub, recPrivStr, err := ecies.GenerateKeyPair()
	require.NoError(t, err)
	decodedRecPub, err := ecies.DecodePublicKey(recPub)
	require.NoError(t, err)
	router.WithRecoveryKey(decodedRecPub)

	_, _, err = machine.Provision(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, store.RegisterPublicKey(ctx, "alice", pub))

	msg := inbound("alice")
	env, err := router.Handle(ctx, msg)
	require.NoError(t, err)
	require.NotNil(t, env.Recovery)

	// The recovery payload is an independent seal of the same plaintext.
	recPriv, err := ecies.DecodePrivateKey(recPrivStr)
	require.NoError(t, err)
	plain, err := ecies.Decrypt(env.Recovery, recPriv, env.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, models.CanonicalPlaintext(msg.From, msg.Subject, msg.Body), string(plain))
}

func TestHandle_NoKeyPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("exposed stores cleartext", func(t *testing.T) {
		router, _, machine := newTestRouter(t)
		_, _, err := machine.Provision(ctx, "alice")
		require.NoError(t, err)

		env, err := router.Handle(ctx, inbound("alice"))
		require.NoError(t, err)
		assert.Equal(t, models.EnvelopeCleartext, env.Kind)
		assert.Equal(t, "message body", env.Plaintext)
		// The hash still covers the canonical form.
		assert.NotEmpty(t, env.ContentHash)
	})

	t.Run("private stores a warning envelope", func(t *testing.T) {
		router, store, machine := newTestRouter(t)
		_, _, err := machine.Provision(ctx, "alice")
		require.NoError(t, err)
		require.NoError(t, store.PutPrivacy(ctx, "alice", &models.PrivacyRecord{State: models.PrivacyPrivate}))

		env, err := router.Handle(ctx, inbound("alice"))
		require.NoError(t, err)
		assert.Equal(t, models.EnvelopeWarning, env.Kind)
		assert.Equal(t, models.UndeliverableNoKey, env.Warning)
		assert.Empty(t, env.Plaintext)
		assert.Nil(t, env.Sealed)
		assert.NotEmpty(t, env.ContentHash)
	})
}

func TestHandle_NFTCollectionResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown collection rejected", func(t *testing.T) {
		router, _, _ := newTestRouter(t)
		_, err := router.Handle(ctx, inbound("punks.7421"))
		assert.ErrorIs(t, err, ErrUnknownCollection)
	})

	t.Run("registered collection provisions token identity", func(t *testing.T) {
		router, store, machine := newTestRouter(t)
		require.NoError(t, store.RegisterCollection(ctx, "punks", "0xabc"))
		router.WithOracle(&fixedOracle{owner: "0xowner"})

		env, err := router.Handle(ctx, inbound("punks.7421"))
		require.NoError(t, err)
		assert.Equal(t, "punks.7421", env.Recipient)

		_, err = machine.Lookup(ctx, "punks.7421")
		require.NoError(t, err)
	})

	t.Run("nonexistent token rejected", func(t *testing.T) {
		router, store, _ := newTestRouter(t)
		require.NoError(t, store.RegisterCollection(ctx, "punks", "0xabc"))
		router.WithOracle(&fixedOracle{owner: ""})

		_, err := router.Handle(ctx, inbound("punks.7421"))
		assert.ErrorIs(t, err, ErrUnknownIdentity)
	})

	t.Run("oracle outage degrades to collection check", func(t *testing.T) {
		router, store, _ := newTestRouter(t)
		require.NoError(t, store.RegisterCollection(ctx, "punks", "0xabc"))
		router.WithOracle(&fixedOracle{err: errors.New("rpc down")})

		_, err := router.Handle(ctx, inbound("punks.7421"))
		require.NoError(t, err)
	})
}

func TestHandle_GlassBoxFeedsAuditLog(t *testing.T) {
	ctx := context.Background()
	router, store, machine := newTestRouter(t)
	_, _, err := machine.Provision(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, store.SetState(ctx, "alice", models.AuditGlassBox))

	env, err := router.Handle(ctx, inbound("alice"))
	require.NoError(t, err)

	log, err := store.GetLog(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, env.ContentHash, log[0].ContentHash)
}

func TestHandle_BlackBoxProducesNoAuditEntry(t *testing.T) {
	ctx := context.Background()
	router, store, machine := newTestRouter(t)
	_, _, err := machine.Provision(ctx, "alice")
	require.NoError(t, err)

	_, err = router.Handle(ctx, inbound("alice"))
	require.NoError(t, err)

	log, err := store.GetLog(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestHandle_Pinning(t *testing.T) {
	ctx := context.Background()

	t.Run("reference stored on success", func(t *testing.T) {
		router, store, machine := newTestRouter(t)
		_, _, err := machine.Provision(ctx, "alice")
		require.NoError(t, err)
		router.WithPinner(&fakePinner{cid: "bafyexample"})

		env, err := router.Handle(ctx, inbound("alice"))
		require.NoError(t, err)
		assert.Equal(t, "bafyexample", env.IPFSRef)

		stored, err := store.Get(ctx, "alice", env.ID)
		require.NoError(t, err)
		assert.Equal(t, "bafyexample", stored.IPFSRef)
	})

	t.Run("failure never blocks storage", func(t *testing.T) {
		router, store, machine := newTestRouter(t)
		_, _, err := machine.Provision(ctx, "alice")
		require.NoError(t, err)
		router.WithPinner(&fakePinner{fail: true})

		env, err := router.Handle(ctx, inbound("alice"))
		require.NoError(t, err)
		assert.Empty(t, env.IPFSRef)

		_, err = store.Get(ctx, "alice", env.ID)
		require.NoError(t, err)
	})
}

func TestHandle_DecayDaysFollowTier(t *testing.T) {
	ctx := context.Background()
	router, _, machine := newTestRouter(t)
	machine.WithClock(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) })
	_, _, err := machine.Provision(ctx, "alice")
	require.NoError(t, err)

	env, err := router.Handle(ctx, inbound("alice"))
	require.NoError(t, err)
	require.NotNil(t, env.DecayDays)
	assert.Equal(t, 7, *env.DecayDays)
}
