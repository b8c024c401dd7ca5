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
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moltmail/moltmail/backend/classify"
	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/tier"
)

// sendDirectMessage sends on behalf of an identity. Basic accounts are
// receive-only. Local recipients are routed through the arrival
// pipeline; external ones go out through the mail provider.
func (h *ActionHandler) sendDirectMessage(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string `json:"identity"`
		To       string `json:"to"`
		Subject  string `json:"subject"`
		Body     string `json:"body"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if !h.authorize(w, r, req.Identity) {
		return
	}

	rec, err := h.tiers.Lookup(r.Context(), req.Identity)
	if err == tier.ErrNotFound {
		http.Error(w, "Identity not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}
	if !rec.CanSend() {
		http.Error(w, "Tier is receive-only", http.StatusForbidden)
		return
	}

	from := req.Identity + "@" + h.cfg.Domain

	// Only recipients on our own domain route through the arrival
	// pipeline. A foreign domain is always outbound mail, even when its
	// local part would classify as one of ours.
	if localRecipient(req.To, h.cfg.Domain) {
		if cls := classify.Classify(req.To); cls.Rejected() {
			http.Error(w, "Invalid recipient address: "+string(cls.Reject), http.StatusBadRequest)
			return
		}
		env, err := h.router.Handle(r.Context(), &models.InboundMessage{
			To:         req.To,
			From:       from,
			Subject:    req.Subject,
			Body:       req.Body,
			ReceivedAt: time.Now().UTC(),
		})
		if err != nil {
			http.Error(w, "Recipient not deliverable", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{
			"status":     "delivered",
			"message_id": env.ID,
		})
		return
	}

	if h.mail == nil {
		http.Error(w, "Outbound mail is not configured", http.StatusBadGateway)
		return
	}
	if err := h.mail.Send(r.Context(), from, req.To, req.Subject, req.Body); err != nil {
		h.log.Error().Err(err).Str("identity", req.Identity).Msg("outbound send failed")
		http.Error(w, "Failed to send message", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "sent"})
}

// localRecipient reports whether an address targets this deployment:
// a bare local part, or an explicit @ on our own domain.
func localRecipient(addr, domain string) bool {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return true
	}
	return strings.EqualFold(addr[at+1:], domain)
}

// scheduleCalendarEvent captures a scheduling request on the identity's
// calendar list.
func (h *ActionHandler) scheduleCalendarEvent(w http.ResponseWriter, r *http.Request, body json.RawMessage) {
	var req struct {
		Identity string    `json:"identity"`
		Title    string    `json:"title"`
		StartsAt time.Time `json:"starts_at"`
		EndsAt   time.Time `json:"ends_at,omitempty"`
		Notes    string    `json:"notes,omitempty"`
	}
	if !h.decode(w, body, &req) {
		return
	}
	if !h.authorize(w, r, req.Identity) {
		return
	}
	if req.Title == "" || req.StartsAt.IsZero() {
		http.Error(w, "Title and starts_at are required", http.StatusBadRequest)
		return
	}

	ev := &models.CalendarEvent{
		ID:        uuid.New().String(),
		Identity:  req.Identity,
		Title:     req.Title,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Notes:     req.Notes,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.AppendCalendarEvent(r.Context(), ev); err != nil {
		http.Error(w, "Failed to schedule event", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, ev)
}
