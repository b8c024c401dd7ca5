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

// Package ingest routes inbound messages: classify the recipient,
// resolve the identity, apply confidentiality policy, store the blind
// envelope, and feed the audit log for glass-box identities.
package ingest

import (
	"context"
	"crypto/ecdh"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/moltmail/moltmail/backend/audit"
	"github.com/moltmail/moltmail/backend/classify"
	"github.com/moltmail/moltmail/backend/ecies"
	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/nft"
	"github.com/moltmail/moltmail/backend/pin"
	"github.com/moltmail/moltmail/backend/storage"
	"github.com/moltmail/moltmail/backend/storage/kv"
	"github.com/moltmail/moltmail/backend/tier"
)

var (
	// ErrRejectedAddress: classification failed, message never stored.
	ErrRejectedAddress = errors.New("recipient address rejected")
	// ErrUnknownCollection: dotted numeric form whose first segment is
	// not a registered collection key. Never silently treated as a
	// social pair.
	ErrUnknownCollection = errors.New("unknown collection key")
	// ErrUnknownIdentity: recipient not provisioned (or dormant).
	ErrUnknownIdentity = errors.New("unknown identity")
)

// Router is the arrival pipeline.
type Router struct {
	store       storage.Store
	tiers       *tier.Machine
	auditor     *audit.Engine
	oracle      nft.Oracle // optional
	pinner      pin.Pinner // optional
	recoveryPub *ecdh.PublicKey
	now         func() time.Time
	log         zerolog.Logger
}

func NewRouter(store storage.Store, tiers *tier.Machine, auditor *audit.Engine, log zerolog.Logger) *Router {
	return &Router{
		store:   store,
		tiers:   tiers,
		auditor: auditor,
		now:     time.Now,
		log:     log,
	}
}

// WithOracle attaches the NFT ownership oracle.
func (r *Router) WithOracle(o nft.Oracle) *Router { r.oracle = o; return r }

// WithPinner attaches the best-effort IPFS pinner.
func (r *Router) WithPinner(p pin.Pinner) *Router { r.pinner = p; return r }

// WithRecoveryKey enables dual encryption under the auditor key.
func (r *Router) WithRecoveryKey(pub *ecdh.PublicKey) *Router { r.recoveryPub = pub; return r }

// WithClock overrides the router clock, for tests.
func (r *Router) WithClock(now func() time.Time) *Router { r.now = now; return r }

// Handle routes one inbound message and returns the stored envelope.
func (r *Router) Handle(ctx context.Context, msg *models.InboundMessage) (*models.Envelope, error) {
	cls := classify.Classify(msg.To)
	if cls.Rejected() {
		return nil, errors.Wrapf(ErrRejectedAddress, "reason %s", cls.Reject)
	}
	identity := cls.IdentityName

	rec, err := r.resolve(ctx, cls)
	if err != nil {
		return nil, err
	}

	canonical := []byte(models.CanonicalPlaintext(msg.From, msg.Subject, msg.Body))
	contentHash := ecies.ContentHash(canonical)

	env := &models.Envelope{
		ID:          uuid.New().String(),
		ContentHash: contentHash,
		Recipient:   identity,
		From:        msg.From,
		Subject:     msg.Subject,
		ReceivedAt:  r.now().UTC(),
		DecayDays:   r.tiers.DecayDays(rec),
	}

	if err := r.seal(ctx, identity, canonical, msg, env); err != nil {
		return nil, err
	}

	// Pin before the primary write so the stored envelope carries its
	// reference. Failures degrade to an unpinned envelope.
	r.pinEnvelope(ctx, env)

	ttl := r.tiers.DecayTTL(rec)
	if err := r.store.Put(ctx, identity, env, ttl); err != nil {
		return nil, errors.Wrap(err, "store envelope")
	}

	// Public audit trail for glass-box identities. A logging failure
	// here never undoes an accepted message.
	if _, err := r.auditor.Record(ctx, identity, msg, contentHash); err != nil {
		r.log.Error().Err(err).Str("identity", identity).Msg("audit record failed")
	}

	r.log.Info().
		Str("identity", identity).
		Str("stream", string(cls.Stream)).
		Str("kind", string(env.Kind)).
		Str("id", env.ID).
		Msg("message routed")
	return env, nil
}

// resolve maps a classification to a live tier record, enforcing each
// stream's existence rules.
func (r *Router) resolve(ctx context.Context, cls models.Classification) (*models.TierRecord, error) {
	switch cls.Stream {
	case models.StreamNFTCollection:
		// The collection key must be registered; its presence
		// authorizes provisioning of per-token identities.
		if _, err := r.store.CollectionContract(ctx, cls.Collection); err != nil {
			if err == kv.ErrNotFound {
				return nil, errors.Wrapf(ErrUnknownCollection, "collection %s", cls.Collection)
			}
			return nil, errors.Wrap(err, "resolve collection")
		}
		if r.oracle != nil {
			contract, _ := r.store.CollectionContract(ctx, cls.Collection)
			owner, err := r.oracle.VerifyOwner(ctx, contract, cls.TokenID)
			if err != nil {
				r.log.Warn().Err(err).Str("identity", cls.IdentityName).
					Msg("ownership oracle unavailable; accepting on collection registration")
			} else if owner == "" {
				return nil, errors.Wrapf(ErrUnknownIdentity, "token %s has no owner", cls.TokenID)
			}
		}
		rec, _, err := r.tiers.Provision(ctx, cls.IdentityName)
		return rec, err

	case models.StreamAgent:
		// The marker is the sole authorization signal for automated
		// provisioning. Agents start glass-box; molt is their exit.
		rec, created, err := r.tiers.Provision(ctx, cls.IdentityName)
		if err != nil {
			return nil, err
		}
		if created {
			if err := r.store.SetState(ctx, cls.IdentityName, models.AuditGlassBox); err != nil {
				r.log.Error().Err(err).Str("identity", cls.IdentityName).
					Msg("set initial audit state failed")
			}
		}
		return rec, nil

	default:
		rec, err := r.tiers.Lookup(ctx, cls.IdentityName)
		if err == tier.ErrNotFound {
			return nil, errors.Wrapf(ErrUnknownIdentity, "identity %s", cls.IdentityName)
		}
		return rec, err
	}
}

// seal applies confidentiality policy: encrypted when a key is
// registered; cleartext only for identities whose privacy state is
// exposed; otherwise a warning envelope. A missing key never drops
// the message.
func (r *Router) seal(ctx context.Context, identity string, canonical []byte, msg *models.InboundMessage, env *models.Envelope) error {
	pubStr, err := r.store.GetPublicKey(ctx, identity)
	if err != nil && err != kv.ErrNotFound {
		return errors.Wrap(err, "read public key")
	}

	if err == nil {
		pub, err := ecies.DecodePublicKey(pubStr)
		if err != nil {
			return errors.Wrap(err, "registered key is invalid")
		}
		sealed, err := ecies.Encrypt(canonical, pub)
		if err != nil {
			return errors.Wrap(err, "seal message")
		}
		env.Kind = models.EnvelopeEncrypted
		env.Sealed = sealed
		// Header fields stay out of the stored record once sealed.
		env.From, env.Subject = "", ""

		if r.recoveryPub != nil {
			// Independent second encryption for supervised recovery;
			// failure here is best-effort and never blocks storage.
			recovery, err := ecies.Encrypt(canonical, r.recoveryPub)
			if err != nil {
				r.log.Error().Err(err).Str("identity", identity).
					Msg("recovery re-encryption failed")
			} else {
				env.Recovery = recovery
			}
		}
		return nil
	}

	// No key registered.
	if r.privacyState(ctx, identity) == models.PrivacyExposed {
		env.Kind = models.EnvelopeCleartext
		env.Plaintext = msg.Body
		return nil
	}

	env.Kind = models.EnvelopeWarning
	env.Warning = models.UndeliverableNoKey
	env.From, env.Subject = "", ""
	return nil
}

func (r *Router) privacyState(ctx context.Context, identity string) models.PrivacyState {
	rec, err := r.store.GetPrivacy(ctx, identity)
	if err != nil {
		// No record reads as exposed, the implicit initial state.
		return models.PrivacyExposed
	}
	return rec.State
}

func (r *Router) pinEnvelope(ctx context.Context, env *models.Envelope) {
	if r.pinner == nil {
		return
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return
	}
	ref, err := r.pinner.Pin(ctx, env.Recipient+"-"+env.ID, blob)
	if err != nil {
		r.log.Warn().Err(err).Str("id", env.ID).Msg("pinning failed")
		return
	}
	env.IPFSRef = ref
}
