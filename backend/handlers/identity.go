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

	"github.com/moltmail/moltmail/backend/classify"
	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/payment"
	"github.com/moltmail/moltmail/backend/storage/kv"
	"github.com/moltmail/moltmail/backend/tier"
)

// classifyAddress is the pure classifier: no storage reads, no
// existence checks, same answer for the same string every time.
func (h *ActionHandler) classifyAddress(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Address string `json:"address"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	writeJSON(w, http.StatusOK, classify.Classify(req.Address))
}

// resolveAddress layers existence and privacy on top of the pure
// classification. Private identities resolve as non-existent.
func (h *ActionHandler) resolveAddress(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Address string `json:"address"`
	}
	if !h.decode(w, body, &req) {
		return
	}

	cls := classify.Classify(req.Address)
	if cls.Rejected() {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"classification": cls,
			"exists":         false,
		})
		return
	}

	exists := false
	switch cls.Stream {
	case models.StreamNFTCollection:
		_, err := h.store.CollectionContract(r.Context(), cls.Collection)
		if err != nil && err != kv.ErrNotFound {
			http.Error(w, "Failed to resolve address", http.StatusInternalServerError)
			return
		}
		exists = err == nil
	default:
		_, err := h.tiers.Lookup(r.Context(), cls.IdentityName)
		if err != nil && err != tier.ErrNotFound {
			http.Error(w, "Failed to resolve address", http.StatusInternalServerError)
			return
		}
		exists = err == nil
	}

	if exists {
		// Privacy gates resolution, not delivery.
		rec, err := h.store.GetPrivacy(r.Context(), cls.IdentityName)
		if err == nil && rec.State != models.PrivacyExposed {
			exists = false
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"classification": cls,
		"exists":         exists,
	})
}

// registerIdentity provisions a sovereign or agent name in its implicit
// initial state. NFT identities are never registered here; they follow
// collection registration and token ownership.
func (h *ActionHandler) registerIdentity(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string `json:"identity"`
	}
	if !h.decode(w, body, &req) {
		return
	}

	cls := classify.Classify(req.Identity)
	if cls.Rejected() {
		http.Error(w, "Invalid identity name: "+string(cls.Reject), http.StatusBadRequest)
		return
	}
	if cls.Stream == models.StreamNFTCollection {
		http.Error(w, "NFT identities are provisioned by token ownership", http.StatusBadRequest)
		return
	}

	rec, created, err := h.tiers.Provision(r.Context(), cls.IdentityName)
	if err != nil {
		http.Error(w, "Failed to register identity", http.StatusInternalServerError)
		return
	}

	// Agents start glass-box; their public log runs until they molt.
	if created && cls.Stream == models.StreamAgent {
		if err := h.store.SetState(r.Context(), cls.IdentityName, models.AuditGlassBox); err != nil {
			h.log.Error().Err(err).Str("identity", cls.IdentityName).Msg("set initial audit state failed")
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"identity": cls.IdentityName,
		"created":  created,
		"tier":     rec.Tier,
	})
}

// upgradeTier runs the payment gate: verify the on-chain reference,
// apply the paid transition, burn the reference.
func (h *ActionHandler) upgradeTier(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string      `json:"identity"`
		Tier     models.Tier `json:"tier"`
		TxHash   string      `json:"tx_hash"`
		Wallet   string      `json:"wallet,omitempty"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if !h.authorize(w, r, req.Identity) {
		return
	}

	rec, err := h.gate.Upgrade(r.Context(), req.TxHash, req.Tier, req.Identity, req.Wallet)
	if err != nil {
		switch {
		case err == payment.ErrAlreadyUsed:
			http.Error(w, err.Error(), http.StatusConflict)
		case err == payment.ErrMalformedReference || err == payment.ErrUnknownTier:
			http.Error(w, err.Error(), http.StatusBadRequest)
		case err == payment.ErrTxNotFound || err == payment.ErrWrongRecipient ||
			err == payment.ErrInsufficientValue || err == payment.ErrUnconfirmed ||
			err == payment.ErrTxFailed:
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		case err == payment.ErrNoOracle:
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		case err == tier.ErrNotFound:
			http.Error(w, "Identity not found", http.StatusNotFound)
		case err == tier.ErrNoDowngrade || err == tier.ErrUnknownTier:
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.log.Error().Err(err).Str("identity", req.Identity).Msg("upgrade failed")
			http.Error(w, "Failed to process upgrade", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity":   req.Identity,
		"tier":       rec.Tier,
		"retention":  rec.Retention,
		"expires_at": rec.ExpiresAt,
	})
}
