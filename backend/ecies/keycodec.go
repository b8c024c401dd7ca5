// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package ecies

import (
	"crypto/ecdh"
	"encoding/base64"

	"github.com/pkg/errors"
)

// Key encoding is isolated here so the engine's public contract never
// leaks it. Public keys travel as base64(uncompressed SEC1 point);
// private keys as base64(scalar bytes). Both are P-256.

// EncodePublicKey renders a public key in registration wire format.
func EncodePublicKey(pub *ecdh.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub.Bytes())
}

// DecodePublicKey parses a registered public key. The point is
// validated by the curve on decode; an off-curve key never gets as
// far as a shared-secret computation.
func DecodePublicKey(encoded string) (*ecdh.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "public key is not valid base64")
	}
	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, errors.Wrap(err, "public key is not a valid P-256 point")
	}
	return pub, nil
}

// EncodePrivateKey renders a private key for the owner. The service
// itself never persists this form.
func EncodePrivateKey(priv *ecdh.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(priv.Bytes())
}

// DecodePrivateKey parses an owner-held private key.
func DecodePrivateKey(encoded string) (*ecdh.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "private key is not valid base64")
	}
	priv, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, errors.Wrap(err, "private key is not a valid P-256 scalar")
	}
	return priv, nil
}
