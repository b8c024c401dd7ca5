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

	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/payment"
)

// checkPaymentUsed reports whether a transaction reference has been
// burned. Public: the burn ledger holds no secrets.
func (h *ActionHandler) checkPaymentUsed(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		TxHash string `json:"tx_hash"`
	}
	if !h.decode(w, body, &req) {
		return
	}

	used, err := h.gate.CheckUsed(r.Context(), req.TxHash)
	if err == payment.ErrMalformedReference {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "Failed to check reference", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tx_hash": req.TxHash,
		"used":    used,
	})
}

// recordPaymentUsed burns a reference consumed by an external flow
// (e.g. a mint) without applying a tier. Service scope only: an owner
// token must not be able to poison the ledger.
func (h *ActionHandler) recordPaymentUsed(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	if !h.serviceOnly(w, r) {
		return
	}

	var req struct {
		TxHash   string      `json:"tx_hash"`
		Identity string      `json:"identity"`
		Tier     models.Tier `json:"tier,omitempty"`
	}
	if !h.decode(w, body, &req) {
		return
	}

	if err := h.gate.RecordUsed(r.Context(), req.TxHash, req.Identity, req.Tier); err != nil {
		if err == payment.ErrMalformedReference {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to record reference", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
