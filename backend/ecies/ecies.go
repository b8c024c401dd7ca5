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

// Package ecies seals message plaintexts for storage at rest.
//
// Scheme: P-256 ECDH with a fresh ephemeral key per message, the
// shared secret expanded through HKDF-SHA-256 under a fixed
// domain-separation salt/info pair into an AES-256-GCM key, sealed
// with a fresh 96-bit nonce. Every sealed payload travels with a
// SHA-256 hash of the original plaintext which Decrypt re-verifies.
package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/moltmail/moltmail/backend/models"
)

// Domain separation for the HKDF expansion. Changing either value
// orphans every envelope already at rest.
var (
	hkdfSalt = []byte("moltmail-ecies-v1")
	hkdfInfo = []byte("blind-envelope-aes256gcm")
)

const (
	aesKeySize = 32
	nonceSize  = 12
)

// ErrIntegrity is returned when a decrypted plaintext does not match
// the hash stored with the payload. It is a hard failure: the caller
// must never surface the recovered bytes.
var ErrIntegrity = errors.New("decrypted content does not match stored hash")

// GenerateKeyPair returns a fresh P-256 key pair in wire encoding.
// The private half is handed to the caller and never stored here.
func GenerateKeyPair() (pub string, priv string, err error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return "", "", errors.Wrap(err, "generate key pair")
	}
	return EncodePublicKey(key.PublicKey()), EncodePrivateKey(key), nil
}

// ContentHash is hex SHA-256 over the canonical plaintext.
func ContentHash(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}

// Encrypt seals plaintext for the recipient public key.
func Encrypt(plaintext []byte, recipientPub *ecdh.PublicKey) (*models.SealedPayload, error) {
	eph, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate ephemeral key")
	}

	secret, err := eph.ECDH(recipientPub)
	if err != nil {
		return nil, errors.Wrap(err, "ecdh agreement")
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}

	return &models.SealedPayload{
		EphemeralPublicKey: eph.PublicKey().Bytes(),
		Nonce:              nonce,
		Ciphertext:         gcm.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Decrypt opens a sealed payload with the recipient private key and
// verifies the recovered plaintext against wantHash (hex SHA-256).
// A mismatch returns ErrIntegrity and no plaintext.
func Decrypt(sealed *models.SealedPayload, recipientPriv *ecdh.PrivateKey, wantHash string) ([]byte, error) {
	ephPub, err := ecdh.P256().NewPublicKey(sealed.EphemeralPublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "ephemeral public key")
	}

	secret, err := recipientPriv.ECDH(ephPub)
	if err != nil {
		return nil, errors.Wrap(err, "ecdh agreement")
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open ciphertext")
	}

	got := ContentHash(plaintext)
	if subtle.ConstantTimeCompare([]byte(got), []byte(wantHash)) != 1 {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func deriveKey(secret []byte) ([]byte, error) {
	key := make([]byte, aesKeySize)
	r := hkdf.New(sha256.New, secret, hkdfSalt, hkdfInfo)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrap(err, "hkdf expand")
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "aes cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "gcm mode")
	}
	return gcm, nil
}
