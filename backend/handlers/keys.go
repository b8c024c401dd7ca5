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

	"github.com/moltmail/moltmail/backend/ecies"
)

// registerKey stores a caller-supplied encryption public key. The key
// is validated as a P-256 point before it is accepted; the private
// half never reaches the service.
func (h *ActionHandler) registerKey(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity  string `json:"identity"`
		PublicKey string `json:"public_key"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if !h.authorize(w, r, req.Identity) {
		return
	}

	if _, err := ecies.DecodePublicKey(req.PublicKey); err != nil {
		http.Error(w, "Invalid public key", http.StatusBadRequest)
		return
	}

	if err := h.store.RegisterPublicKey(r.Context(), req.Identity, req.PublicKey); err != nil {
		http.Error(w, "Failed to register key", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// generateKey creates a key pair server-side, registers the public
// half and hands the private half back exactly once. It is never
// stored; losing the response loses the key.
func (h *ActionHandler) generateKey(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string `json:"identity"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if !h.authorize(w, r, req.Identity) {
		return
	}

	pub, priv, err := ecies.GenerateKeyPair()
	if err != nil {
		http.Error(w, "Failed to generate key pair", http.StatusInternalServerError)
		return
	}

	if err := h.store.RegisterPublicKey(r.Context(), req.Identity, pub); err != nil {
		http.Error(w, "Failed to register key", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"public_key":  pub,
		"private_key": priv,
	})
}
