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

// Package handlers exposes the service over HTTP: the closed-set
// action dispatch endpoint, the inbound webhook and the sweep trigger.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/moltmail/moltmail/backend/audit"
	"github.com/moltmail/moltmail/backend/config"
	"github.com/moltmail/moltmail/backend/ingest"
	"github.com/moltmail/moltmail/backend/mailer"
	"github.com/moltmail/moltmail/backend/middleware"
	"github.com/moltmail/moltmail/backend/payment"
	"github.com/moltmail/moltmail/backend/storage"
	"github.com/moltmail/moltmail/backend/tier"
)

// Action is one operation of the closed dispatch set. Anything not in
// the table below is rejected centrally, before any parsing.
type Action string

const (
	ActionGetInbox          Action = "get-inbox"
	ActionGetStatus         Action = "get-status"
	ActionScheduleCalendar  Action = "schedule-calendar-event"
	ActionSendDirectMessage Action = "send-direct-message"
	ActionSetPrivacy        Action = "set-privacy"
	ActionGetPrivacy        Action = "get-privacy"
	ActionResolveAddress    Action = "resolve-address"
	ActionClassifyAddress   Action = "classify-address"
	ActionRegisterKey       Action = "register-encryption-key"
	ActionGenerateKey       Action = "generate-encryption-key"
	ActionGetAuditLog       Action = "get-audit-log"
	ActionMoltToPrivate     Action = "molt-to-private"
	ActionRegisterIdentity  Action = "register-identity"
	ActionUpgradeTier       Action = "upgrade-tier"
	ActionFreezeMessage     Action = "freeze-message"
	ActionDeleteMessage     Action = "delete-message"
	ActionCheckPaymentUsed  Action = "check-payment-used"
	ActionRecordPaymentUsed Action = "record-payment-used"
	ActionPurgeInbox        Action = "purge-inbox"
)

// maxActionBody bounds one action request.
const maxActionBody = 1 << 20

type actionFunc func(w http.ResponseWriter, r *http.Request, body json.RawMessage)

// ActionHandler dispatches /api/v1/action requests.
type ActionHandler struct {
	store   storage.Store
	tiers   *tier.Machine
	auditor *audit.Engine
	gate    *payment.Gate
	router  *ingest.Router
	mail    mailer.Provider // optional
	cfg     *config.Config
	log     zerolog.Logger
	table   map[Action]actionFunc
}

func NewActionHandler(store storage.Store, tiers *tier.Machine, auditor *audit.Engine, gate *payment.Gate, router *ingest.Router, cfg *config.Config, log zerolog.Logger) *ActionHandler {
	h := &ActionHandler{
		store:   store,
		tiers:   tiers,
		auditor: auditor,
		gate:    gate,
		router:  router,
		cfg:     cfg,
		log:     log,
	}
	h.table = map[Action]actionFunc{
		ActionGetInbox:          h.getInbox,
		ActionGetStatus:         h.getStatus,
		ActionScheduleCalendar:  h.scheduleCalendarEvent,
		ActionSendDirectMessage: h.sendDirectMessage,
		ActionSetPrivacy:        h.setPrivacy,
		ActionGetPrivacy:        h.getPrivacy,
		ActionResolveAddress:    h.resolveAddress,
		ActionClassifyAddress:   h.classifyAddress,
		ActionRegisterKey:       h.registerKey,
		ActionGenerateKey:       h.generateKey,
		ActionGetAuditLog:       h.getAuditLog,
		ActionMoltToPrivate:     h.moltToPrivate,
		ActionRegisterIdentity:  h.registerIdentity,
		ActionUpgradeTier:       h.upgradeTier,
		ActionFreezeMessage:     h.freezeMessage,
		ActionDeleteMessage:     h.deleteMessage,
		ActionCheckPaymentUsed:  h.checkPaymentUsed,
		ActionRecordPaymentUsed: h.recordPaymentUsed,
		ActionPurgeInbox:        h.purgeInbox,
	}
	return h
}

// WithMailer attaches the outbound provider for direct sends.
func (h *ActionHandler) WithMailer(m mailer.Provider) *ActionHandler {
	h.mail = m
	return h
}

// Dispatch routes one action request to its handler.
func (h *ActionHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBody))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fn, ok := h.table[req.Action]
	if !ok {
		h.log.Warn().Str("action", string(req.Action)).Msg("unknown action rejected")
		http.Error(w, "Unknown action", http.StatusBadRequest)
		return
	}
	fn(w, r, body)
}

// authorize enforces owner scope on identity-mutating actions.
func (h *ActionHandler) authorize(w http.ResponseWriter, r *http.Request, identity string) bool {
	if middleware.CanActFor(r, identity) {
		return true
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
	return false
}

// serviceOnly enforces service scope.
func (h *ActionHandler) serviceOnly(w http.ResponseWriter, r *http.Request) bool {
	if middleware.IsService(r) {
		return true
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
	return false
}

func (h *ActionHandler) decode(w http.ResponseWriter, body json.RawMessage, dst interface{}) bool {
	if err := json.Unmarshal(body, dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
