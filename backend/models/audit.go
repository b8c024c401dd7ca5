// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

// AuditState is the glass-box / black-box classification of an identity.
type AuditState string

const (
	AuditGlassBox AuditState = "glass-box"
	AuditBlackBox AuditState = "black-box"
)

// AuditEntry is one record in a glass-box identity's public log.
// ContentHash is always computed over the true plaintext, even when
// the visible subject/content have been redacted.
type AuditEntry struct {
	ID              string    `json:"id"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	Subject         string    `json:"subject"`
	Content         string    `json:"content"`
	Timestamp       time.Time `json:"timestamp"`
	ContentHash     string    `json:"content_hash"`
	Redacted        bool      `json:"redacted"`
	RedactionReason string    `json:"redaction_reason,omitempty"`
}

// AuditTransition records the one-way glass-box -> black-box molt.
type AuditTransition struct {
	Identity  string     `json:"identity"`
	OldState  AuditState `json:"old_state"`
	NewState  AuditState `json:"new_state"`
	Timestamp time.Time  `json:"timestamp"`
}
