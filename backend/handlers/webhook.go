// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/moltmail/moltmail/backend/ingest"
	"github.com/moltmail/moltmail/backend/middleware"
	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/sweep"
)

// WebhookHandler receives inbound messages pushed by the provider.
type WebhookHandler struct {
	router *ingest.Router
	log    zerolog.Logger
}

func NewWebhookHandler(router *ingest.Router, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{router: router, log: log}
}

// Inbound handles one pushed message. Rejections answer 422 so the
// provider stops retrying; transient failures answer 500 so it does.
func (h *WebhookHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	var msg models.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	env, err := h.router.Handle(r.Context(), &msg)
	if err != nil {
		cause := errors.Cause(err)
		if cause == ingest.ErrRejectedAddress || cause == ingest.ErrUnknownCollection ||
			cause == ingest.ErrUnknownIdentity {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.log.Error().Err(err).Str("to", msg.To).Msg("inbound routing failed")
		http.Error(w, "Failed to route message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message_id": env.ID,
		"status":     "stored",
	})
}

// SweepHandler triggers a provider mailbox sweep on demand. The route
// is registered behind required auth; only service scope may fire it.
type SweepHandler struct {
	sweeper *sweep.Sweeper
	log     zerolog.Logger
}

func NewSweepHandler(sweeper *sweep.Sweeper, log zerolog.Logger) *SweepHandler {
	return &SweepHandler{sweeper: sweeper, log: log}
}

func (h *SweepHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if !middleware.IsService(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	res, err := h.sweeper.Run(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("manual sweep failed")
		http.Error(w, "Sweep failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Health is the liveness endpoint.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
