// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

// PrivacyState is the tri-state visibility of an identity.
// HardPrivacy is terminal: the owner cannot toggle back out of it
// without a paid action.
type PrivacyState string

const (
	PrivacyExposed PrivacyState = "exposed"
	PrivacyPrivate PrivacyState = "private"
	PrivacyHard    PrivacyState = "hard-privacy"
)

// PrivacyRecord is the persisted visibility of an identity.
type PrivacyRecord struct {
	State     PrivacyState `json:"state"`
	UpdatedAt time.Time    `json:"updated_at"`
}
