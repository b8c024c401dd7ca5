// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/storage"
	"github.com/moltmail/moltmail/backend/storage/kv"
)

// ErrAlreadyPrivate is returned by Molt when the identity is already
// black-box; the transition is one-way and cannot be repeated.
var ErrAlreadyPrivate = errors.New("identity is already black-box")

// Engine appends audit entries for glass-box identities.
type Engine struct {
	store storage.AuditStore
	now   func() time.Time
	log   zerolog.Logger
}

func NewEngine(store storage.AuditStore, log zerolog.Logger) *Engine {
	return &Engine{store: store, now: time.Now, log: log}
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Record appends an audit entry for the message if the identity is
// glass-box, redacting sensitive content. contentHash must be the
// hash of the true, unredacted canonical plaintext. Black-box
// identities produce no entry.
func (e *Engine) Record(ctx context.Context, identity string, msg *models.InboundMessage, contentHash string) (*models.AuditEntry, error) {
	state, err := e.store.State(ctx, identity)
	if err != nil {
		return nil, errors.Wrap(err, "read audit state")
	}
	if state != models.AuditGlassBox {
		return nil, nil
	}

	entry := &models.AuditEntry{
		ID:          uuid.New().String(),
		From:        msg.From,
		To:          msg.To,
		Subject:     msg.Subject,
		Content:     msg.Body,
		Timestamp:   e.now().UTC(),
		ContentHash: contentHash,
	}

	if sensitive, reason := DetectSensitive(msg.From, msg.Subject, msg.Body); sensitive {
		entry.Subject = RedactedSubject
		entry.Content = RedactionNotice
		entry.Redacted = true
		entry.RedactionReason = reason
		e.log.Debug().
			Str("identity", identity).
			Str("reason", reason).
			Msg("audit entry redacted")
	}

	if err := e.store.Append(ctx, identity, entry); err != nil {
		return nil, errors.Wrap(err, "append audit entry")
	}
	return entry, nil
}

// Molt flips a glass-box identity to black-box. The transition is
// one-way: future messages are never publicly logged again, and the
// existing log remains (append-only, no deletes).
func (e *Engine) Molt(ctx context.Context, identity string) (*models.AuditTransition, error) {
	state, err := e.store.State(ctx, identity)
	if err != nil {
		return nil, errors.Wrap(err, "read audit state")
	}
	if state == models.AuditBlackBox {
		return nil, ErrAlreadyPrivate
	}

	t := &models.AuditTransition{
		Identity:  identity,
		OldState:  state,
		NewState:  models.AuditBlackBox,
		Timestamp: e.now().UTC(),
	}
	if err := e.store.SetState(ctx, identity, models.AuditBlackBox); err != nil {
		return nil, errors.Wrap(err, "set audit state")
	}
	if err := e.store.RecordMolt(ctx, t); err != nil {
		return nil, errors.Wrap(err, "record transition")
	}
	return t, nil
}

// History returns the molt transition if one happened.
func (e *Engine) History(ctx context.Context, identity string) (*models.AuditTransition, error) {
	t, err := e.store.GetMolt(ctx, identity)
	if err == kv.ErrNotFound {
		return nil, nil
	}
	return t, err
}
