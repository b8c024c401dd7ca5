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

package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	serviceKey  contextKey = "service"
)

// NewAuthMiddleware authenticates requests with a Bearer token. Two
// token forms are accepted: the shared service secret (grants service
// scope, every identity), or an owner token minted by MintOwnerToken
// (grants exactly one identity).
func NewAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized: no authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}
			token := parts[1]

			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1 {
				ctx := context.WithValue(r.Context(), serviceKey, true)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			identity, err := verifyOwnerToken(token, secret, time.Now())
			if err != nil {
				http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth validates the Authorization header when present and
// passes anonymous requests through. Handlers that mix public and
// owner-scoped actions enforce scope themselves via CanActFor.
func OptionalAuth(secret string) func(http.Handler) http.Handler {
	required := NewAuthMiddleware(secret)
	return func(next http.Handler) http.Handler {
		withAuth := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			withAuth.ServeHTTP(w, r)
		})
	}
}

// MintOwnerToken issues an identity-scoped token: base64(identity) "."
// unix expiry "." base64(HMAC-SHA256(secret, identity "." expiry)).
func MintOwnerToken(identity, secret string, expiresAt time.Time) string {
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	payload := identity + "." + exp
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(identity)) + "." + exp + "." +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func verifyOwnerToken(token, secret string, now time.Time) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid token format")
	}

	identityRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("failed to decode identity: %v", err)
	}
	identity := string(identityRaw)

	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("failed to parse expiry: %v", err)
	}
	if now.Unix() > exp {
		return "", fmt.Errorf("token expired")
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("failed to decode signature: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(identity + "." + parts[1]))
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return "", fmt.Errorf("invalid signature")
	}

	return identity, nil
}

// GetIdentity extracts the authenticated identity from the request
// context. Absent for service-scoped requests.
func GetIdentity(r *http.Request) (string, bool) {
	identity, ok := r.Context().Value(identityKey).(string)
	return identity, ok
}

// IsService reports whether the request authenticated with the shared
// service secret.
func IsService(r *http.Request) bool {
	ok, _ := r.Context().Value(serviceKey).(bool)
	return ok
}

// CanActFor reports whether the request may mutate the given identity:
// service scope always can, owner scope only for its own identity.
func CanActFor(r *http.Request, identity string) bool {
	if IsService(r) {
		return true
	}
	own, ok := GetIdentity(r)
	return ok && own == identity
}

// CORS middleware for handling cross-origin requests
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigins := []string{
			"https://moltmail.net",
			"https://app.moltmail.net",
			"http://localhost:3000", // Development
		}

		for _, allowed := range allowedOrigins {
			if origin == allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
