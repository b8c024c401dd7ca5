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

// Package tier is the account tier and retention state machine:
// basic -> upgraded -> {annual, full}. Paid transitions are applied
// here only after the payment gate has verified the reference; the
// gate burns the reference only after this machine has recorded the
// upgrade.
package tier

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/moltmail/moltmail/backend/config"
	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/storage"
	"github.com/moltmail/moltmail/backend/storage/kv"
)

var (
	// ErrNotFound covers both unprovisioned identities and dormant
	// basic accounts, which are reported as non-existent to lookups.
	ErrNotFound = errors.New("identity not provisioned")
	// ErrNoDowngrade: once retention is extended it is never
	// administratively shortened.
	ErrNoDowngrade = errors.New("tier downgrade is not a supported transition")
	ErrUnknownTier = errors.New("unknown tier")
)

// upgradedTerm is the account term granted by a non-annual upgrade.
const upgradedTerm = 365 * 24 * time.Hour

// Machine mutates tier records; nothing else in the service does.
type Machine struct {
	store storage.TierStore
	cfg   *config.Config
	now   func() time.Time
}

func NewMachine(store storage.TierStore, cfg *config.Config) *Machine {
	return &Machine{store: store, cfg: cfg, now: time.Now}
}

// WithClock overrides the machine clock, for tests.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

func rank(t models.Tier) int {
	switch t {
	case models.TierBasic:
		return 0
	case models.TierUpgraded:
		return 1
	case models.TierAnnual, models.TierFull:
		return 2
	default:
		return -1
	}
}

// Provision grants the implicit initial basic state. Returns false
// when the identity already had a record; the existing record is
// returned unchanged (first writer wins, see DESIGN.md on the
// provisioning race).
func (m *Machine) Provision(ctx context.Context, identity string) (*models.TierRecord, bool, error) {
	now := m.now().UTC()
	expires := now.Add(m.cfg.BasicDecay())
	rec := &models.TierRecord{
		Tier:      models.TierBasic,
		ExpiresAt: &expires,
		Retention: models.RetentionBounded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := m.store.Create(ctx, identity, rec)
	if err != nil {
		return nil, false, errors.Wrap(err, "provision identity")
	}
	if !created {
		existing, err := m.store.GetTier(ctx, identity)
		if err != nil {
			return nil, false, errors.Wrap(err, "load existing record")
		}
		return existing, false, nil
	}
	return rec, true, nil
}

// Lookup returns the live record. Dormant basic accounts (window
// elapsed) are reported as non-existent until renewed, even though
// their KV keys may still be present until TTL collection.
func (m *Machine) Lookup(ctx context.Context, identity string) (*models.TierRecord, error) {
	rec, err := m.store.GetTier(ctx, identity)
	if err == kv.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.Tier == models.TierBasic && rec.Dormant(m.now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Renew restarts a basic account's window, waking a dormant identity.
func (m *Machine) Renew(ctx context.Context, identity string) (*models.TierRecord, error) {
	rec, err := m.store.GetTier(ctx, identity)
	if err == kv.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.Tier != models.TierBasic {
		return rec, nil
	}
	now := m.now().UTC()
	expires := now.Add(m.cfg.BasicDecay())
	rec.ExpiresAt = &expires
	rec.UpdatedAt = now
	if err := m.store.PutTier(ctx, identity, rec); err != nil {
		return nil, errors.Wrap(err, "renew record")
	}
	return rec, nil
}

// Upgrade applies a verified paid transition. The caller (payment
// gate) is responsible for verification ordering; this method only
// enforces the transition graph.
func (m *Machine) Upgrade(ctx context.Context, identity string, target models.Tier, wallet string) (*models.TierRecord, error) {
	if rank(target) <= 0 {
		if rank(target) < 0 {
			return nil, ErrUnknownTier
		}
		return nil, ErrNoDowngrade // "upgrading" to basic
	}

	rec, err := m.store.GetTier(ctx, identity)
	if err == kv.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if rank(target) <= rank(rec.Tier) {
		return nil, ErrNoDowngrade
	}

	now := m.now().UTC()
	rec.Tier = target
	rec.UpdatedAt = now
	if wallet != "" {
		rec.LinkedWallet = wallet
	}
	switch target {
	case models.TierUpgraded:
		expires := now.Add(upgradedTerm)
		rec.ExpiresAt = &expires
		rec.Retention = models.RetentionBounded
	case models.TierAnnual, models.TierFull:
		rec.ExpiresAt = nil
		rec.Retention = models.RetentionInfinite
	}

	if err := m.store.PutTier(ctx, identity, rec); err != nil {
		return nil, errors.Wrap(err, "store upgraded record")
	}
	return rec, nil
}

// DecayTTL maps a record to the message retention TTL its tier fixes.
// Zero means no expiry.
func (m *Machine) DecayTTL(rec *models.TierRecord) time.Duration {
	switch {
	case rec == nil:
		return m.cfg.BasicDecay()
	case rec.Retention == models.RetentionInfinite:
		return kv.NoExpiry
	case rec.Tier == models.TierUpgraded:
		return m.cfg.UpgradeDecay()
	default:
		return m.cfg.BasicDecay()
	}
}

// DecayDays renders the tier's window for envelope display; nil for
// infinite retention.
func (m *Machine) DecayDays(rec *models.TierRecord) *int {
	ttl := m.DecayTTL(rec)
	if ttl <= 0 {
		return nil
	}
	days := int(ttl / (24 * time.Hour))
	return &days
}
