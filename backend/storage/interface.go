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

package storage

import (
	"context"
	"time"

	"github.com/moltmail/moltmail/backend/models"
)

// InboxStore is the blind envelope store. Envelopes live under
// blind:{identity}:{id} with a capped id index under
// blind-index:{identity}; decay is store-enforced via TTL.
type InboxStore interface {
	// Put stores the envelope and indexes it. ttl <= 0 means
	// infinite retention. Oldest entries are evicted past the cap.
	Put(ctx context.Context, recipient string, env *models.Envelope, ttl time.Duration) error
	// GetAll fans out reads over the index and returns surviving
	// envelopes newest-first, ignoring dangling ids.
	GetAll(ctx context.Context, recipient string) ([]*models.Envelope, error)
	Get(ctx context.Context, recipient, id string) (*models.Envelope, error)
	// Freeze removes the envelope's TTL independent of tier.
	Freeze(ctx context.Context, recipient, id string) error
	Delete(ctx context.Context, recipient, id string) error
	// PurgeAll deletes every indexed envelope plus the index.
	// Idempotent: purging an empty inbox succeeds.
	PurgeAll(ctx context.Context, recipient string) error
}

// AuditStore holds the append-only public log of glass-box identities.
type AuditStore interface {
	Append(ctx context.Context, identity string, entry *models.AuditEntry) error
	GetLog(ctx context.Context, identity string, limit int) ([]*models.AuditEntry, error)
	// State defaults to black-box for identities that never opted in.
	State(ctx context.Context, identity string) (models.AuditState, error)
	SetState(ctx context.Context, identity string, state models.AuditState) error
	// RecordMolt stores the one-way glass-box -> black-box transition.
	RecordMolt(ctx context.Context, t *models.AuditTransition) error
	GetMolt(ctx context.Context, identity string) (*models.AuditTransition, error)
}

// TierStore persists account tier records under acct-tier:{identity}.
// Method names carry the Tier suffix so the aggregate Store does not
// collide with the inbox store's Get/Put.
type TierStore interface {
	GetTier(ctx context.Context, identity string) (*models.TierRecord, error)
	PutTier(ctx context.Context, identity string, rec *models.TierRecord) error
	// Create writes only if no record exists yet. Returns false when
	// the identity was already provisioned.
	Create(ctx context.Context, identity string, rec *models.TierRecord) (bool, error)
}

// PrivacyStore persists the tri-state privacy record.
type PrivacyStore interface {
	GetPrivacy(ctx context.Context, identity string) (*models.PrivacyRecord, error)
	PutPrivacy(ctx context.Context, identity string, rec *models.PrivacyRecord) error
}

// KeyStore registers ECIES public keys. The private half is never
// transmitted to or stored by the service.
type KeyStore interface {
	RegisterPublicKey(ctx context.Context, identity, publicKey string) error
	GetPublicKey(ctx context.Context, identity string) (string, error)
}

// PaymentStore is the double-spend ledger under payment-tx:{hash}.
type PaymentStore interface {
	IsBurned(ctx context.Context, txHash string) (bool, error)
	GetBurn(ctx context.Context, txHash string) (*models.BurnRecord, error)
	Burn(ctx context.Context, txHash string, rec *models.BurnRecord) error
}

// RegistryStore knows the configured NFT collection keys (tld:{key})
// and the calendar capture lists.
type RegistryStore interface {
	// CollectionContract resolves a collection key to its on-chain
	// contract address; kv.ErrNotFound for unknown collections.
	CollectionContract(ctx context.Context, key string) (string, error)
	RegisterCollection(ctx context.Context, key, contract string) error
	AppendCalendarEvent(ctx context.Context, ev *models.CalendarEvent) error
	GetCalendar(ctx context.Context, identity string, limit int) ([]*models.CalendarEvent, error)
}

// SweepStore records per-message idempotency markers so a second sweep
// run never reprocesses a message.
type SweepStore interface {
	// MarkProcessed returns false when the marker already existed.
	MarkProcessed(ctx context.Context, providerID string) (bool, error)
	// ReleaseMarker drops a claim so a later run can retry the message.
	ReleaseMarker(ctx context.Context, providerID string) error
}

// Store aggregates every per-concern store.
type Store interface {
	InboxStore
	AuditStore
	TierStore
	PrivacyStore
	KeyStore
	PaymentStore
	RegistryStore
	SweepStore
}
