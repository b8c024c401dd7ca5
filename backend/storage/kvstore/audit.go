// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package kvstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/storage/kv"
)

// Append adds an entry to the identity's public log. The log is
// append-only: no edit or delete operation exists anywhere in the
// service.
func (s *Store) Append(ctx context.Context, identity string, entry *models.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	return s.kv.LPush(ctx, auditPrefix+identity, string(data))
}

// GetLog returns up to limit entries, newest first. limit <= 0 returns
// the whole log.
func (s *Store) GetLog(ctx context.Context, identity string, limit int) ([]*models.AuditEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	vals, err := s.kv.LRange(ctx, auditPrefix+identity, 0, stop)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	entries := make([]*models.AuditEntry, 0, len(vals))
	for _, v := range vals {
		var e models.AuditEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// State reports the identity's audit classification, defaulting to
// black-box when it never opted in.
func (s *Store) State(ctx context.Context, identity string) (models.AuditState, error) {
	val, err := s.kv.Get(ctx, auditStatePrefix+identity)
	if err == kv.ErrNotFound {
		return models.AuditBlackBox, nil
	}
	if err != nil {
		return "", err
	}
	return models.AuditState(val), nil
}

func (s *Store) SetState(ctx context.Context, identity string, state models.AuditState) error {
	return s.kv.Set(ctx, auditStatePrefix+identity, string(state), kv.NoExpiry)
}

func (s *Store) RecordMolt(ctx context.Context, t *models.AuditTransition) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}
	return s.kv.Set(ctx, auditMoltPrefix+t.Identity, string(data), kv.NoExpiry)
}

func (s *Store) GetMolt(ctx context.Context, identity string) (*models.AuditTransition, error) {
	val, err := s.kv.Get(ctx, auditMoltPrefix+identity)
	if err != nil {
		return nil, err
	}
	var t models.AuditTransition
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transition: %w", err)
	}
	return &t, nil
}
