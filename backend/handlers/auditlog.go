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

	"github.com/moltmail/moltmail/backend/audit"
)

// getAuditLog returns the public glass-box log. It is world-readable
// by design; black-box identities simply have nothing in it.
func (h *ActionHandler) getAuditLog(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string `json:"identity"`
		Limit    int    `json:"limit,omitempty"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}

	entries, err := h.store.GetLog(r.Context(), req.Identity, req.Limit)
	if err != nil {
		http.Error(w, "Failed to retrieve audit log", http.StatusInternalServerError)
		return
	}

	state, err := h.store.State(r.Context(), req.Identity)
	if err != nil {
		http.Error(w, "Failed to retrieve audit log", http.StatusInternalServerError)
		return
	}

	molt, err := h.auditor.History(r.Context(), req.Identity)
	if err != nil {
		http.Error(w, "Failed to retrieve audit log", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
		"state":   state,
		"molt":    molt,
	})
}

// moltToPrivate flips a glass-box identity to black-box, one-way. The
// accumulated log survives the molt.
func (h *ActionHandler) moltToPrivate(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string `json:"identity"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if !h.authorize(w, r, req.Identity) {
		return
	}

	t, err := h.auditor.Molt(r.Context(), req.Identity)
	if err == audit.ErrAlreadyPrivate {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "Failed to molt identity", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, t)
}
