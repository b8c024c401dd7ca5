// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package kvstore implements every storage interface on the kv.Client
// contract. The key namespace:
//
//	blind:{identity}:{id}   envelope
//	blind-index:{identity}  envelope id list, capped
//	blind-frozen:{identity} frozen envelope ids, never expires
//	audit:{identity}        audit log
//	audit-state:{identity}  glass-box / black-box flag
//	audit-molt:{identity}   molt transition record
//	acct-tier:{identity}    tier record
//	privacy:{identity}      privacy record
//	ecies-pubkey:{identity} registered public key
//	payment-tx:{hash}       burn record
//	tld:{collection}        collection key -> contract address
//	calendar:{identity}     captured calendar events
//	sweep:{provider-id}     sweep idempotency marker
package kvstore

import (
	"context"
	"time"

	"github.com/moltmail/moltmail/backend/storage"
	"github.com/moltmail/moltmail/backend/storage/kv"
)

const (
	blindPrefix       = "blind:"
	blindIndexPrefix  = "blind-index:"
	blindFrozenPrefix = "blind-frozen:"
	auditPrefix       = "audit:"
	auditStatePrefix  = "audit-state:"
	auditMoltPrefix   = "audit-molt:"
	tierPrefix        = "acct-tier:"
	privacyPrefix     = "privacy:"
	pubkeyPrefix      = "ecies-pubkey:"
	paymentPrefix     = "payment-tx:"
	tldPrefix         = "tld:"
	calendarPrefix    = "calendar:"
	sweepPrefix       = "sweep:"
)

const (
	// burnTTL keeps payment burn records for about a year.
	burnTTL = 365 * 24 * time.Hour
	// sweepMarkerTTL outlives every message retention window so a
	// marker never expires before the message it guards.
	sweepMarkerTTL = 90 * 24 * time.Hour
	// calendarCap bounds the per-identity calendar capture list.
	calendarCap = 200
)

// Store implements storage.Store over a kv.Client.
type Store struct {
	kv       kv.Client
	inboxCap int
}

var _ storage.Store = (*Store)(nil)

// New builds a Store. inboxCap bounds each recipient's envelope index.
func New(client kv.Client, inboxCap int) *Store {
	return &Store{kv: client, inboxCap: inboxCap}
}

// MarkProcessed implements the sweep idempotency marker.
func (s *Store) MarkProcessed(ctx context.Context, providerID string) (bool, error) {
	return s.kv.SetNX(ctx, sweepPrefix+providerID, "1", sweepMarkerTTL)
}

// ReleaseMarker frees a claimed marker after a transient failure.
func (s *Store) ReleaseMarker(ctx context.Context, providerID string) error {
	return s.kv.Del(ctx, sweepPrefix+providerID)
}
