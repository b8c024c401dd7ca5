// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package kv is the single persistence substrate of the service: a
// string key-value store with TTLs and list values. The Redis client
// is the production implementation; the memory client exists so decay
// behavior can be tested against a simulated clock. No multi-key
// transaction is offered, by contract as well as by backend.
package kv

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get for absent or expired keys.
var ErrNotFound = errors.New("kv: key not found")

// NoExpiry disables TTL on Set.
const NoExpiry time.Duration = 0

// Client is the storage contract shared by every store in the service.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	// MGet fans out reads across independent keys; absent keys come
	// back nil rather than erroring.
	MGet(ctx context.Context, keys ...string) ([]*string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes only if the key is absent. Returns false when the
	// key already existed.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Persist removes any TTL from a key.
	Persist(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LRem(ctx context.Context, key, value string) error
}
