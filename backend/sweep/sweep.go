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

// Package sweep drains the third-party provider mailbox into the blind
// store. Runs are cooperative batches: each message is claimed with an
// idempotency marker before processing, so overlapping or repeated
// runs never double-deliver.
package sweep

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/moltmail/moltmail/backend/ingest"
	"github.com/moltmail/moltmail/backend/mailer"
	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/storage"
)

// DefaultBatchSize bounds one run's provider fetch.
const DefaultBatchSize = 50

// Result summarizes one sweep run.
type Result struct {
	Fetched   int `json:"fetched"`
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
}

// Deliverer runs one message through the arrival pipeline.
type Deliverer interface {
	Handle(ctx context.Context, msg *models.InboundMessage) (*models.Envelope, error)
}

var _ Deliverer = (*ingest.Router)(nil)

// Sweeper pulls provider messages through the arrival pipeline.
type Sweeper struct {
	provider  mailer.Provider
	router    Deliverer
	markers   storage.SweepStore
	batchSize int
	running   atomic.Bool
	log       zerolog.Logger
}

func New(provider mailer.Provider, router Deliverer, markers storage.SweepStore, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		provider:  provider,
		router:    router,
		markers:   markers,
		batchSize: DefaultBatchSize,
		log:       log,
	}
}

// WithBatchSize overrides the per-run fetch bound.
func (s *Sweeper) WithBatchSize(n int) *Sweeper {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Run executes one sweep batch. Concurrent calls are collapsed: a run
// already in flight makes Run return an empty result immediately.
func (s *Sweeper) Run(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug().Msg("sweep already in flight, skipping")
		return &Result{}, nil
	}
	defer s.running.Store(false)

	msgs, err := s.provider.ListUnprocessed(ctx, s.batchSize)
	if err != nil {
		return nil, err
	}

	res := &Result{Fetched: len(msgs)}
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		claimed, err := s.markers.MarkProcessed(ctx, msg.ProviderID)
		if err != nil {
			res.Failed++
			s.log.Error().Err(err).Str("provider_id", msg.ProviderID).Msg("claim marker failed")
			continue
		}
		if !claimed {
			res.Skipped++
			continue
		}

		if _, err := s.router.Handle(ctx, msg); err != nil {
			if terminal(err) {
				// Rejections are terminal: the message is classified
				// away, not retried. The marker stays so it is never
				// re-pulled, and the provider copy can go.
				res.Rejected++
				s.log.Info().Err(err).Str("to", msg.To).Str("provider_id", msg.ProviderID).
					Msg("swept message not deliverable")
			} else {
				// Anything else is transient (storage, pipeline). Keep
				// the provider copy and free the marker so a later run
				// retries the message.
				res.Failed++
				s.log.Error().Err(err).Str("to", msg.To).Str("provider_id", msg.ProviderID).
					Msg("swept message delivery failed, will retry")
				if relErr := s.markers.ReleaseMarker(ctx, msg.ProviderID); relErr != nil {
					s.log.Error().Err(relErr).Str("provider_id", msg.ProviderID).
						Msg("release marker failed; message retries after marker expiry")
				}
				continue
			}
		} else {
			res.Delivered++
		}

		// Provider cleanup is best-effort; the marker makes a leftover
		// copy harmless on the next run.
		if err := s.provider.DeleteMessage(ctx, msg.ProviderID); err != nil {
			s.log.Warn().Err(err).Str("provider_id", msg.ProviderID).Msg("provider delete failed")
		}
	}

	s.log.Info().
		Int("fetched", res.Fetched).
		Int("delivered", res.Delivered).
		Int("skipped", res.Skipped).
		Int("rejected", res.Rejected).
		Int("failed", res.Failed).
		Msg("sweep run complete")
	return res, nil
}

// terminal reports whether a delivery error can never succeed on
// retry. Only classification outcomes qualify.
func terminal(err error) bool {
	switch errors.Cause(err) {
	case ingest.ErrRejectedAddress, ingest.ErrUnknownCollection, ingest.ErrUnknownIdentity:
		return true
	}
	return false
}

// Loop runs sweeps on a fixed interval until the context is canceled.
func (s *Sweeper) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.log.Error().Err(err).Msg("scheduled sweep failed")
			}
		}
	}
}
