// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

// Tier is the account level of an identity.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierUpgraded Tier = "upgraded"
	TierAnnual   Tier = "annual"
	TierFull     Tier = "full"
)

// Retention is the inbox retention class fixed by the tier.
type Retention string

const (
	RetentionBounded  Retention = "bounded"
	RetentionInfinite Retention = "infinite"
)

// TierRecord is the persisted account state, mutated only by the tier
// state machine.
type TierRecord struct {
	Tier Tier `json:"tier"`
	// ExpiresAt is nil for infinite-retention tiers.
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Retention    Retention  `json:"retention"`
	LinkedWallet string     `json:"linked_wallet,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CanSend reports whether the tier includes outbound send capability.
// Basic accounts are receive-only.
func (r *TierRecord) CanSend() bool {
	return r.Tier != TierBasic
}

// WalletEligible reports eligibility for a linked custodial wallet
// deployment (upgraded and above).
func (r *TierRecord) WalletEligible() bool {
	return r.Tier != TierBasic
}

// Dormant reports whether a bounded account's window has elapsed. A
// dormant identity is reported as non-existent to new lookups until
// renewed.
func (r *TierRecord) Dormant(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}
