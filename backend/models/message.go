// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

// InboundMessage is an email-shaped message as it arrives at the edge,
// either from the webhook or from the mailbox sweep.
type InboundMessage struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// ProviderID is the upstream provider's message id, used as the
	// sweep idempotency marker. Empty for webhook arrivals.
	ProviderID string    `json:"provider_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// CalendarEvent is a scheduling request captured for an agent identity.
type CalendarEvent struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
