// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryClient is an in-process Client with the same TTL semantics as
// Redis. It exists for tests (the clock is injectable so decay can be
// simulated) and for local development without a Redis instance. It
// is not durable and must never back a production deployment.
type MemoryClient struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]*memItem
}

type memItem struct {
	value    string
	list     []string
	deadline time.Time // zero = no expiry
}

// NewMemoryClient returns a memory store reading time from clock.
// Pass nil for wall-clock time.
func NewMemoryClient(clock func() time.Time) *MemoryClient {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryClient{now: clock, items: make(map[string]*memItem)}
}

// live fetches an item, lazily dropping it when expired. Callers hold mu.
func (c *MemoryClient) live(key string) *memItem {
	it, ok := c.items[key]
	if !ok {
		return nil
	}
	if !it.deadline.IsZero() && !c.now().Before(it.deadline) {
		delete(c.items, key)
		return nil
	}
	return it
}

func (c *MemoryClient) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *MemoryClient) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.live(key)
	if it == nil {
		return "", ErrNotFound
	}
	return it.value, nil
}

func (c *MemoryClient) MGet(_ context.Context, keys ...string) ([]*string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*string, len(keys))
	for i, key := range keys {
		if it := c.live(key); it != nil {
			v := it.value
			out[i] = &v
		}
	}
	return out, nil
}

func (c *MemoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &memItem{value: value, deadline: c.deadline(ttl)}
	return nil
}

func (c *MemoryClient) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live(key) != nil {
		return false, nil
	}
	c.items[key] = &memItem{value: value, deadline: c.deadline(ttl)}
	return true, nil
}

func (c *MemoryClient) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.items, key)
	}
	return nil
}

func (c *MemoryClient) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live(key) != nil, nil
}

func (c *MemoryClient) Persist(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it := c.live(key); it != nil {
		it.deadline = time.Time{}
	}
	return nil
}

func (c *MemoryClient) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it := c.live(key); it != nil {
		it.deadline = c.deadline(ttl)
	}
	return nil
}

func (c *MemoryClient) LPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.live(key)
	if it == nil {
		it = &memItem{}
		c.items[key] = it
	}
	// LPush prepends, preserving Redis ordering: last value pushed
	// ends up at the head.
	for _, v := range values {
		it.list = append([]string{v}, it.list...)
	}
	return nil
}

func (c *MemoryClient) LTrim(_ context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.live(key)
	if it == nil {
		return nil
	}
	n := int64(len(it.list))
	from, to := normalizeRange(start, stop, n)
	if from > to {
		it.list = nil
		return nil
	}
	it.list = it.list[from : to+1]
	return nil
}

func (c *MemoryClient) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.live(key)
	if it == nil {
		return nil, nil
	}
	n := int64(len(it.list))
	from, to := normalizeRange(start, stop, n)
	if from > to {
		return nil, nil
	}
	out := make([]string, to-from+1)
	copy(out, it.list[from:to+1])
	return out, nil
}

func (c *MemoryClient) LRem(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.live(key)
	if it == nil {
		return nil
	}
	kept := it.list[:0]
	for _, v := range it.list {
		if v != value {
			kept = append(kept, v)
		}
	}
	it.list = kept
	return nil
}

func normalizeRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}
