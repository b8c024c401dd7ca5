// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

// BurnRecord marks an on-chain transaction reference as consumed.
// Its existence under payment-tx:{hash} means the hash is spent and
// must never be accepted again.
type BurnRecord struct {
	Identity   string    `json:"identity"`
	Tier       Tier      `json:"tier"`
	RecordedAt time.Time `json:"recorded_at"`
}
