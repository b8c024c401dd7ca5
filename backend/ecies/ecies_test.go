// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package ecies

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	pubStr, privStr, err := GenerateKeyPair()
	require.NoError(t, err)

	pub, err := DecodePublicKey(pubStr)
	require.NoError(t, err)
	priv, err := DecodePrivateKey(privStr)
	require.NoError(t, err)

	plaintexts := [][]byte{
		[]byte(""),
		[]byte("hello"),
		[]byte("From: a@b\nSubject: hi\n\nbody"),
		bytes.Repeat([]byte("long message payload "), 4096),
	}

	for _, pt := range plaintexts {
		sealed, err := Encrypt(pt, pub)
		require.NoError(t, err)
		require.Len(t, sealed.Nonce, nonceSize)
		require.NotEmpty(t, sealed.EphemeralPublicKey)

		got, err := Decrypt(sealed, priv, ContentHash(pt))
		require.NoError(t, err)
		// Byte comparison: an empty plaintext round-trips as nil.
		assert.Equal(t, string(pt), string(got))
	}
}

func TestEncrypt_FreshEphemeralPerMessage(t *testing.T) {
	pubStr, _, err := GenerateKeyPair()
	require.NoError(t, err)
	pub, err := DecodePublicKey(pubStr)
	require.NoError(t, err)

	a, err := Encrypt([]byte("same plaintext"), pub)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same plaintext"), pub)
	require.NoError(t, err)

	assert.NotEqual(t, a.EphemeralPublicKey, b.EphemeralPublicKey)
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestDecrypt_WrongKeyNeverAccepted(t *testing.T) {
	pubStr, _, err := GenerateKeyPair()
	require.NoError(t, err)
	pub, err := DecodePublicKey(pubStr)
	require.NoError(t, err)

	_, wrongPrivStr, err := GenerateKeyPair()
	require.NoError(t, err)
	wrongPriv, err := DecodePrivateKey(wrongPrivStr)
	require.NoError(t, err)

	pt := []byte("secret")
	sealed, err := Encrypt(pt, pub)
	require.NoError(t, err)

	got, err := Decrypt(sealed, wrongPriv, ContentHash(pt))
	require.Error(t, err)
	assert.Nil(t, got)
}

func TestDecrypt_HashMismatchIsFatal(t *testing.T) {
	pubStr, privStr, err := GenerateKeyPair()
	require.NoError(t, err)
	pub, err := DecodePublicKey(pubStr)
	require.NoError(t, err)
	priv, err := DecodePrivateKey(privStr)
	require.NoError(t, err)

	sealed, err := Encrypt([]byte("actual content"), pub)
	require.NoError(t, err)

	got, err := Decrypt(sealed, priv, ContentHash([]byte("claimed content")))
	require.ErrorIs(t, err, ErrIntegrity)
	assert.Nil(t, got)
}

func TestKeyCodec(t *testing.T) {
	pubStr, privStr, err := GenerateKeyPair()
	require.NoError(t, err)

	pub, err := DecodePublicKey(pubStr)
	require.NoError(t, err)
	assert.Equal(t, pubStr, EncodePublicKey(pub))

	priv, err := DecodePrivateKey(privStr)
	require.NoError(t, err)
	assert.Equal(t, privStr, EncodePrivateKey(priv))

	// Private halves match public halves.
	assert.Equal(t, pubStr, EncodePublicKey(priv.PublicKey()))
}

func TestKeyCodec_RejectsGarbage(t *testing.T) {
	_, err := DecodePublicKey("not base64!!")
	assert.Error(t, err)

	_, err = DecodePublicKey("aGVsbG8=") // valid base64, not a curve point
	assert.Error(t, err)

	_, err = DecodePrivateKey(strings.Repeat("A", 40))
	assert.Error(t, err)
}

func TestContentHash_Stable(t *testing.T) {
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		ContentHash([]byte("hello")))
}
