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

	"github.com/moltmail/moltmail/backend/storage/kv"
	"github.com/moltmail/moltmail/backend/tier"
)

// getInbox returns the caller's blind envelopes newest-first, with
// decay percentages. Reading the inbox counts as activity and renews a
// basic account's window.
func (h *ActionHandler) getInbox(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string `json:"identity"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if !h.authorize(w, r, req.Identity) {
		return
	}

	if _, err := h.tiers.Renew(r.Context(), req.Identity); err != nil && err != tier.ErrNotFound {
		h.log.Error().Err(err).Str("identity", req.Identity).Msg("inbox renew failed")
	}

	envs, err := h.store.GetAll(r.Context(), req.Identity)
	if err != nil {
		http.Error(w, "Failed to retrieve inbox", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	decay := make([]int, len(envs))
	for i, env := range envs {
		decay[i] = env.DecayPercent(now)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": envs,
		"decay":    decay,
		"count":    len(envs),
	})
}

// getStatus reports public account state: tier, retention, decay
// window and audit mode.
func (h *ActionHandler) getStatus(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string `json:"identity"`
	}
	if !h.decode(w, body, &req) {
		return
	}

	rec, err := h.tiers.Lookup(r.Context(), req.Identity)
	if err == tier.ErrNotFound {
		http.Error(w, "Identity not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to retrieve status", http.StatusInternalServerError)
		return
	}

	state, err := h.store.State(r.Context(), req.Identity)
	if err != nil {
		http.Error(w, "Failed to retrieve status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity":        req.Identity,
		"tier":            rec.Tier,
		"retention":       rec.Retention,
		"expires_at":      rec.ExpiresAt,
		"decay_days":      h.tiers.DecayDays(rec),
		"can_send":        rec.CanSend(),
		"wallet_eligible": rec.WalletEligible(),
		"audit_state":     state,
	})
}

// freezeMessage pins one envelope against decay, independent of tier.
func (h *ActionHandler) freezeMessage(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity  string `json:"identity"`
		MessageID string `json:"message_id"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if !h.authorize(w, r, req.Identity) {
		return
	}

	if err := h.store.Freeze(r.Context(), req.Identity, req.MessageID); err != nil {
		if err == kv.ErrNotFound {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to freeze message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "frozen"})
}

func (h *ActionHandler) deleteMessage(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity  string `json:"identity"`
		MessageID string `json:"message_id"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if !h.authorize(w, r, req.Identity) {
		return
	}

	if err := h.store.Delete(r.Context(), req.Identity, req.MessageID); err != nil {
		http.Error(w, "Failed to delete message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// purgeInbox deletes every stored envelope for the identity. Idempotent.
func (h *ActionHandler) purgeInbox(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string `json:"identity"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if !h.authorize(w, r, req.Identity) {
		return
	}

	if err := h.store.PurgeAll(r.Context(), req.Identity); err != nil {
		http.Error(w, "Failed to purge inbox", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}
