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

// Package audit maintains the public, redacted log of glass-box
// identities. Entries prove that a message was received and exactly
// when, without exposing authentication secrets: sensitive entries
// keep their true content hash but publish only placeholders.
package audit

import (
	"regexp"
	"strings"
)

// Fixed placeholders published in place of sensitive content.
const (
	RedactedSubject = "[redacted: authentication message]"
	RedactionNotice = "This entry was redacted. An authentication or security " +
		"notification was received at the recorded time; its content hash is " +
		"retained for integrity verification."
)

// Redaction reasons.
const (
	ReasonAuthSender  = "auth-sender"
	ReasonAuthKeyword = "auth-keyword"
	ReasonCodeToken   = "numeric-token-in-auth-context"
)

// authSenderRe matches known authentication/security-notification
// sender addresses.
var authSenderRe = regexp.MustCompile(`(?i)\b(no-?reply|do-?not-?reply|security|account[s]?|verify|verification|auth|mfa|2fa|otp|signin|login)@`)

// authKeywords are phrases that mark a message as an authentication
// signal on their own.
var authKeywords = []string{
	"one-time code",
	"one time code",
	"one-time password",
	"verification code",
	"security code",
	"login code",
	"sign-in code",
	"confirmation code",
	"password reset",
	"reset your password",
	"two-factor",
	"2fa code",
	"authentication code",
	"your otp",
}

// codeContextRe marks weaker context in which a bare numeric token is
// treated as a one-time code.
var codeContextRe = regexp.MustCompile(`(?i)\b(code|verify|verification|otp|passcode|authenticate)\b`)

// tokenRe matches bare 4-8 digit tokens.
var tokenRe = regexp.MustCompile(`\b[0-9]{4,8}\b`)

// DetectSensitive runs the redaction rules over a message. It returns
// whether any rule fired and which one.
func DetectSensitive(from, subject, body string) (bool, string) {
	if authSenderRe.MatchString(from) {
		return true, ReasonAuthSender
	}

	text := strings.ToLower(subject + "\n" + body)
	for _, kw := range authKeywords {
		if strings.Contains(text, kw) {
			return true, ReasonAuthKeyword
		}
	}

	if codeContextRe.MatchString(text) && tokenRe.MatchString(text) {
		return true, ReasonCodeToken
	}

	return false, ""
}
