// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import (
	"fmt"
	"math"
	"time"
)

// EnvelopeKind discriminates how the payload of a blind envelope is stored.
type EnvelopeKind string

const (
	EnvelopeCleartext EnvelopeKind = "cleartext"
	EnvelopeEncrypted EnvelopeKind = "encrypted"
	// EnvelopeWarning records that a message arrived for an identity
	// with no registered key and could not be stored as cleartext.
	// Only the integrity hash survives.
	EnvelopeWarning EnvelopeKind = "warning"
)

// UndeliverableNoKey is the marker carried by warning envelopes.
const UndeliverableNoKey = "undeliverable as cleartext, no key registered"

// SealedPayload is one ECIES encryption of a plaintext: the sender's
// ephemeral public key, the AES-GCM nonce and the ciphertext with its
// tag appended.
type SealedPayload struct {
	EphemeralPublicKey []byte `json:"ephemeral_public_key"`
	Nonce              []byte `json:"nonce"`
	Ciphertext         []byte `json:"ciphertext"`
}

// Envelope is a stored blind message. Exactly one of Sealed/Plaintext
// is populated depending on Kind; warning envelopes carry neither.
type Envelope struct {
	ID        string         `json:"id"`
	Kind      EnvelopeKind   `json:"kind"`
	Sealed    *SealedPayload `json:"sealed,omitempty"`
	Recovery  *SealedPayload `json:"recovery,omitempty"`
	Plaintext string         `json:"plaintext,omitempty"`
	// ContentHash is hex SHA-256 of the canonical plaintext. It is
	// verifiable after decryption regardless of storage path.
	ContentHash string    `json:"content_hash"`
	Recipient   string    `json:"recipient"`
	From        string    `json:"from,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
	Frozen      bool      `json:"frozen"`
	// DecayDays is nil for infinite retention.
	DecayDays *int   `json:"decay_days,omitempty"`
	IPFSRef   string `json:"ipfs_ref,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// DecayPercent reports how far through its retention window the
// envelope is, for display. Frozen and infinite-retention envelopes
// always report 0.
func (e *Envelope) DecayPercent(now time.Time) int {
	if e.Frozen || e.DecayDays == nil {
		return 0
	}
	window := time.Duration(*e.DecayDays) * 24 * time.Hour
	if window <= 0 {
		return 0
	}
	age := now.Sub(e.ReceivedAt)
	if age < 0 {
		return 0
	}
	pct := int(math.Round(float64(age) / float64(window) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

// CanonicalPlaintext is the exact byte form a message is hashed and
// sealed over. Changing this breaks every stored content hash.
func CanonicalPlaintext(from, subject, body string) string {
	return fmt.Sprintf("From: %s\nSubject: %s\n\n%s", from, subject, body)
}
