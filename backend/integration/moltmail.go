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

// Package integration embeds the mail router into a host application:
// the host brings its own Redis client and mux router, this package
// wires the engines and registers the routes.
package integration

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/moltmail/moltmail/backend/audit"
	"github.com/moltmail/moltmail/backend/config"
	"github.com/moltmail/moltmail/backend/ecies"
	"github.com/moltmail/moltmail/backend/handlers"
	"github.com/moltmail/moltmail/backend/ingest"
	"github.com/moltmail/moltmail/backend/mailer"
	"github.com/moltmail/moltmail/backend/middleware"
	"github.com/moltmail/moltmail/backend/nft"
	"github.com/moltmail/moltmail/backend/payment"
	"github.com/moltmail/moltmail/backend/pin"
	"github.com/moltmail/moltmail/backend/storage/kv"
	"github.com/moltmail/moltmail/backend/storage/kvstore"
	"github.com/moltmail/moltmail/backend/sweep"
	"github.com/moltmail/moltmail/backend/tier"
)

// Router provides the mail routing stack as a plugin for a host server.
type Router struct {
	store   *kvstore.Store
	tiers   *tier.Machine
	auditor *audit.Engine
	ingest  *ingest.Router
	actions *handlers.ActionHandler
	webhook *handlers.WebhookHandler
	sweeper *sweep.Sweeper
	cfg     *config.Config
	log     zerolog.Logger
}

// Config holds what the host must provide.
type Config struct {
	Redis  *redis.Client
	Config *config.Config
	Logger zerolog.Logger
}

// New assembles the full stack on the host's Redis client.
func New(c *Config) (*Router, error) {
	cfg := c.Config
	log := c.Logger

	store := kvstore.New(kv.NewRedisClient(c.Redis), cfg.InboxCap)
	machine := tier.NewMachine(store, cfg)
	auditor := audit.NewEngine(store, log)

	router := ingest.NewRouter(store, machine, auditor, log)
	if cfg.RPCEndpoint != "" {
		router.WithOracle(nft.NewRPCOracle(cfg.RPCEndpoint))
	}
	if cfg.PinEndpoint != "" {
		router.WithPinner(pin.NewClient(cfg.PinEndpoint, cfg.PinToken))
	}
	if cfg.RecoveryPublicKey != "" {
		pub, err := ecies.DecodePublicKey(cfg.RecoveryPublicKey)
		if err != nil {
			return nil, err
		}
		router.WithRecoveryKey(pub)
	}

	var oracle payment.ChainOracle
	if cfg.RPCEndpoint != "" {
		oracle = payment.NewEthClient(cfg.RPCEndpoint)
	}
	gate := payment.NewGate(store, machine, oracle, cfg, log)

	actions := handlers.NewActionHandler(store, machine, auditor, gate, router, cfg, log)

	var sweeper *sweep.Sweeper
	if cfg.MailProviderURL != "" {
		provider := mailer.NewClient(cfg.MailProviderURL, cfg.MailProviderToken)
		actions.WithMailer(provider)
		sweeper = sweep.New(provider, router, store, log)
	}

	return &Router{
		store:   store,
		tiers:   machine,
		auditor: auditor,
		ingest:  router,
		actions: actions,
		webhook: handlers.NewWebhookHandler(router, log),
		sweeper: sweeper,
		cfg:     cfg,
		log:     log,
	}, nil
}

// RegisterRoutes adds the service routes to an existing router. If
// authMiddleware is nil the built-in shared-secret/owner-token auth is
// used.
func (m *Router) RegisterRoutes(r *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	if authMiddleware == nil {
		authMiddleware = middleware.NewAuthMiddleware(m.cfg.SharedSecret)
	}

	// The action endpoint mixes public and owner-scoped actions; scope
	// is enforced per action inside the dispatcher.
	r.Handle("/api/v1/action",
		middleware.OptionalAuth(m.cfg.SharedSecret)(http.HandlerFunc(m.actions.Dispatch))).
		Methods("POST", "OPTIONS")

	r.HandleFunc("/webhook/inbound", m.webhook.Inbound).Methods("POST")

	if m.sweeper != nil {
		sweepHandler := handlers.NewSweepHandler(m.sweeper, m.log)
		r.Handle("/internal/sweep",
			authMiddleware(http.HandlerFunc(sweepHandler.Trigger))).
			Methods("POST")
	}

	r.HandleFunc("/health", handlers.Health).Methods("GET")
}

// Sweeper returns the background sweeper; nil when no mail provider is
// configured.
func (m *Router) Sweeper() *sweep.Sweeper {
	return m.sweeper
}

// Store returns the underlying storage implementation.
func (m *Router) Store() *kvstore.Store {
	return m.store
}

// Ingest returns the arrival pipeline, for hosts that feed messages
// directly.
func (m *Router) Ingest() *ingest.Router {
	return m.ingest
}
