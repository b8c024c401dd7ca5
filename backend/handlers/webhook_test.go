// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltmail/moltmail/backend/audit"
	"github.com/moltmail/moltmail/backend/config"
	"github.com/moltmail/moltmail/backend/ingest"
	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/storage/kv"
	"github.com/moltmail/moltmail/backend/storage/kvstore"
	"github.com/moltmail/moltmail/backend/tier"
)

func newWebhookEnv(t *testing.T) (*WebhookHandler, *kvstore.Store, *tier.Machine) {
	t.Helper()
	store := kvstore.New(kv.NewMemoryClient(nil), 100)
	machine := tier.NewMachine(store, config.NewForTesting())
	router := ingest.NewRouter(store, machine, audit.NewEngine(store, zerolog.Nop()), zerolog.Nop())
	return NewWebhookHandler(router, zerolog.Nop()), store, machine
}

func postInbound(t *testing.T, h *WebhookHandler, msg *models.InboundMessage) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhook/inbound", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.Inbound(rr, req)
	return rr
}

func TestInbound_StoresMessage(t *testing.T) {
	h, store, machine := newWebhookEnv(t)
	ctx := context.Background()
	_, _, err := machine.Provision(ctx, "alice")
	require.NoError(t, err)

	rr := postInbound(t, h, &models.InboundMessage{
		To: "alice", From: "sender@example.com", Subject: "hi", Body: "hello",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	envs, err := store.GetAll(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, envs, 1)
}

func TestInbound_RejectionIsNotRetryable(t *testing.T) {
	h, _, _ := newWebhookEnv(t)

	// Classification rejection.
	rr := postInbound(t, h, &models.InboundMessage{To: "bob.4a2", From: "x@y", Body: "hi"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	// Unknown identity.
	rr = postInbound(t, h, &models.InboundMessage{To: "nobody", From: "x@y", Body: "hi"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
