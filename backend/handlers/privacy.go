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

	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/storage/kv"
)

// setPrivacy moves the identity between exposed, private and
// hard-privacy. Hard-privacy is terminal: no action moves an identity
// back out of it.
func (h *ActionHandler) setPrivacy(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string              `json:"identity"`
		State    models.PrivacyState `json:"state"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if !h.authorize(w, r, req.Identity) {
		return
	}

	switch req.State {
	case models.PrivacyExposed, models.PrivacyPrivate, models.PrivacyHard:
	default:
		http.Error(w, "Unknown privacy state", http.StatusBadRequest)
		return
	}

	current, err := h.store.GetPrivacy(r.Context(), req.Identity)
	if err != nil && err != kv.ErrNotFound {
		http.Error(w, "Failed to read privacy state", http.StatusInternalServerError)
		return
	}
	if err == nil && current.State == models.PrivacyHard {
		http.Error(w, "Hard privacy is terminal", http.StatusConflict)
		return
	}

	rec := &models.PrivacyRecord{State: req.State, UpdatedAt: time.Now().UTC()}
	if err := h.store.PutPrivacy(r.Context(), req.Identity, rec); err != nil {
		http.Error(w, "Failed to store privacy state", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *ActionHandler) getPrivacy(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string `json:"identity"`
	}
	if !h.decode(w, body, &req) {
		return
	}

	rec, err := h.store.GetPrivacy(r.Context(), req.Identity)
	if err == kv.ErrNotFound {
		// Exposed is the implicit initial state.
		writeJSON(w, http.StatusOK, &models.PrivacyRecord{State: models.PrivacyExposed})
		return
	}
	if err != nil {
		http.Error(w, "Failed to read privacy state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
