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
	"sort"
	"time"

	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/storage/kv"
)

func envelopeKey(recipient, id string) string {
	return blindPrefix + recipient + ":" + id
}

func indexKey(recipient string) string {
	return blindIndexPrefix + recipient
}

func frozenIndexKey(recipient string) string {
	return blindFrozenPrefix + recipient
}

// Put stores the envelope under blind:{recipient}:{id} and pushes its
// id onto the capped index. Envelope and index share one TTL; ttl <= 0
// sets no expiry (infinite retention).
func (s *Store) Put(ctx context.Context, recipient string, env *models.Envelope, ttl time.Duration) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if ttl < 0 {
		ttl = kv.NoExpiry
	}
	if err := s.kv.Set(ctx, envelopeKey(recipient, env.ID), string(data), ttl); err != nil {
		return fmt.Errorf("failed to store envelope: %w", err)
	}

	idx := indexKey(recipient)
	if err := s.kv.LPush(ctx, idx, env.ID); err != nil {
		return fmt.Errorf("failed to index envelope: %w", err)
	}

	// Evict oldest past the cap, deleting their backing keys so an
	// infinite-retention inbox does not leak orphaned envelopes.
	evicted, err := s.kv.LRange(ctx, idx, int64(s.inboxCap), -1)
	if err != nil {
		return fmt.Errorf("failed to read eviction range: %w", err)
	}
	if len(evicted) > 0 {
		keys := make([]string, len(evicted))
		for i, id := range evicted {
			keys[i] = envelopeKey(recipient, id)
		}
		if err := s.kv.Del(ctx, keys...); err != nil {
			return fmt.Errorf("failed to evict envelopes: %w", err)
		}
		if err := s.kv.LTrim(ctx, idx, 0, int64(s.inboxCap)-1); err != nil {
			return fmt.Errorf("failed to trim index: %w", err)
		}
	}

	// The index carries the same TTL as its envelopes unless the
	// account has infinite retention.
	if ttl > 0 {
		if err := s.kv.Expire(ctx, idx, ttl); err != nil {
			return fmt.Errorf("failed to expire index: %w", err)
		}
	} else {
		if err := s.kv.Persist(ctx, idx); err != nil {
			return fmt.Errorf("failed to persist index: %w", err)
		}
	}

	return nil
}

// GetAll fans out parallel reads of the index entries (one MGET) and
// returns surviving envelopes newest-first. Ids whose backing key has
// already expired are dropped from the index and ignored; decay is
// store-enforced, not application-enforced.
func (s *Store) GetAll(ctx context.Context, recipient string) ([]*models.Envelope, error) {
	idx := indexKey(recipient)
	ids, err := s.kv.LRange(ctx, idx, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	// Frozen ids live on their own non-expiring index so they stay
	// listable after the main index decays with the inbox.
	frozen, err := s.kv.LRange(ctx, frozenIndexKey(recipient), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to read frozen index: %w", err)
	}
	if len(frozen) > 0 {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			seen[id] = true
		}
		for _, id := range frozen {
			if !seen[id] {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = envelopeKey(recipient, id)
	}
	vals, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to read envelopes: %w", err)
	}

	envs := make([]*models.Envelope, 0, len(vals))
	for i, val := range vals {
		if val == nil {
			// Expired or deleted; drop the dangling index id.
			_ = s.kv.LRem(ctx, idx, ids[i])
			_ = s.kv.LRem(ctx, frozenIndexKey(recipient), ids[i])
			continue
		}
		var env models.Envelope
		if err := json.Unmarshal([]byte(*val), &env); err != nil {
			continue // skip malformed entries
		}
		envs = append(envs, &env)
	}

	sort.Slice(envs, func(i, j int) bool {
		return envs[i].ReceivedAt.After(envs[j].ReceivedAt)
	})
	return envs, nil
}

func (s *Store) Get(ctx context.Context, recipient, id string) (*models.Envelope, error) {
	val, err := s.kv.Get(ctx, envelopeKey(recipient, id))
	if err != nil {
		return nil, err
	}
	var env models.Envelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &env, nil
}

// Freeze sets the frozen flag, strips the envelope's TTL and records
// the id on the frozen index. The main index keeps its own expiry; the
// frozen index never expires, so the envelope stays listable after the
// surrounding inbox decays.
func (s *Store) Freeze(ctx context.Context, recipient, id string) error {
	env, err := s.Get(ctx, recipient, id)
	if err != nil {
		return err
	}
	env.Frozen = true

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	// Set without TTL both rewrites the flag and removes the expiry.
	if err := s.kv.Set(ctx, envelopeKey(recipient, id), string(data), kv.NoExpiry); err != nil {
		return fmt.Errorf("failed to freeze envelope: %w", err)
	}

	// LRem first keeps a re-freeze from duplicating the id.
	fidx := frozenIndexKey(recipient)
	if err := s.kv.LRem(ctx, fidx, id); err != nil {
		return fmt.Errorf("failed to update frozen index: %w", err)
	}
	if err := s.kv.LPush(ctx, fidx, id); err != nil {
		return fmt.Errorf("failed to update frozen index: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, recipient, id string) error {
	if err := s.kv.Del(ctx, envelopeKey(recipient, id)); err != nil {
		return fmt.Errorf("failed to delete envelope: %w", err)
	}
	if err := s.kv.LRem(ctx, frozenIndexKey(recipient), id); err != nil {
		return fmt.Errorf("failed to update frozen index: %w", err)
	}
	return s.kv.LRem(ctx, indexKey(recipient), id)
}

// PurgeAll deletes every indexed envelope plus the index itself.
// Destructive and non-recoverable; trivially succeeds on an empty inbox.
func (s *Store) PurgeAll(ctx context.Context, recipient string) error {
	idx := indexKey(recipient)
	ids, err := s.kv.LRange(ctx, idx, 0, -1)
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	frozen, err := s.kv.LRange(ctx, frozenIndexKey(recipient), 0, -1)
	if err != nil {
		return fmt.Errorf("failed to read frozen index: %w", err)
	}

	keys := make([]string, 0, len(ids)+len(frozen)+2)
	for _, id := range ids {
		keys = append(keys, envelopeKey(recipient, id))
	}
	for _, id := range frozen {
		keys = append(keys, envelopeKey(recipient, id))
	}
	keys = append(keys, idx, frozenIndexKey(recipient))
	return s.kv.Del(ctx, keys...)
}
