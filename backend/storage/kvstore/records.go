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
	"strings"

	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/storage/kv"
)

// Tier records.

func (s *Store) GetTier(ctx context.Context, identity string) (*models.TierRecord, error) {
	val, err := s.kv.Get(ctx, tierPrefix+identity)
	if err != nil {
		return nil, err
	}
	var rec models.TierRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tier record: %w", err)
	}
	return &rec, nil
}

func (s *Store) PutTier(ctx context.Context, identity string, rec *models.TierRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal tier record: %w", err)
	}
	return s.kv.Set(ctx, tierPrefix+identity, string(data), kv.NoExpiry)
}

// Create provisions an identity only if absent. SetNX narrows the
// concurrent-provisioning race to a single winner on this key; there
// is no transaction covering the neighboring privacy/key writes, a
// documented gap of the single-KV design.
func (s *Store) Create(ctx context.Context, identity string, rec *models.TierRecord) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to marshal tier record: %w", err)
	}
	return s.kv.SetNX(ctx, tierPrefix+identity, string(data), kv.NoExpiry)
}

// Privacy records.

func (s *Store) GetPrivacy(ctx context.Context, identity string) (*models.PrivacyRecord, error) {
	val, err := s.kv.Get(ctx, privacyPrefix+identity)
	if err != nil {
		return nil, err
	}
	var rec models.PrivacyRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal privacy record: %w", err)
	}
	return &rec, nil
}

func (s *Store) PutPrivacy(ctx context.Context, identity string, rec *models.PrivacyRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal privacy record: %w", err)
	}
	return s.kv.Set(ctx, privacyPrefix+identity, string(data), kv.NoExpiry)
}

// Key registration. Only the public half ever reaches this store.

func (s *Store) RegisterPublicKey(ctx context.Context, identity, publicKey string) error {
	return s.kv.Set(ctx, pubkeyPrefix+identity, publicKey, kv.NoExpiry)
}

func (s *Store) GetPublicKey(ctx context.Context, identity string) (string, error) {
	return s.kv.Get(ctx, pubkeyPrefix+identity)
}

// Payment burn ledger. Hashes are stored lowercased.

func (s *Store) IsBurned(ctx context.Context, txHash string) (bool, error) {
	return s.kv.Exists(ctx, paymentPrefix+strings.ToLower(txHash))
}

func (s *Store) GetBurn(ctx context.Context, txHash string) (*models.BurnRecord, error) {
	val, err := s.kv.Get(ctx, paymentPrefix+strings.ToLower(txHash))
	if err != nil {
		return nil, err
	}
	var rec models.BurnRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal burn record: %w", err)
	}
	return &rec, nil
}

func (s *Store) Burn(ctx context.Context, txHash string, rec *models.BurnRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal burn record: %w", err)
	}
	return s.kv.Set(ctx, paymentPrefix+strings.ToLower(txHash), string(data), burnTTL)
}

// Collection registry and calendar capture.

func (s *Store) CollectionContract(ctx context.Context, key string) (string, error) {
	return s.kv.Get(ctx, tldPrefix+strings.ToLower(key))
}

func (s *Store) RegisterCollection(ctx context.Context, key, contract string) error {
	return s.kv.Set(ctx, tldPrefix+strings.ToLower(key), strings.ToLower(contract), kv.NoExpiry)
}

func (s *Store) AppendCalendarEvent(ctx context.Context, ev *models.CalendarEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal calendar event: %w", err)
	}
	key := calendarPrefix + ev.Identity
	if err := s.kv.LPush(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to store calendar event: %w", err)
	}
	return s.kv.LTrim(ctx, key, 0, calendarCap-1)
}

func (s *Store) GetCalendar(ctx context.Context, identity string, limit int) ([]*models.CalendarEvent, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	vals, err := s.kv.LRange(ctx, calendarPrefix+identity, 0, stop)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar: %w", err)
	}
	events := make([]*models.CalendarEvent, 0, len(vals))
	for _, v := range vals {
		var ev models.CalendarEvent
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			continue
		}
		events = append(events, &ev)
	}
	return events, nil
}
