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

// Package classify maps a raw recipient address onto an identity
// stream. Classification is a total, deterministic function of the
// input string; it never consults storage.
//
// The grammar, in priority order (first match wins):
//
//	1. seg1.seg2[_]   two-segment dot form, gated on seg2:
//	                  all digits  -> nft-collection (seg1 = collection, seg2 = token id)
//	                  all letters -> social-pair
//	                  mixed       -> rejected (anti-spoof; never resolves either way)
//	2. name_          trailing agent marker -> agent stream
//	3. name           flat form -> sovereign, strict charset
//
// Examples:
//
//	alice        -> sovereign
//	ab_          -> agent "ab"
//	punks.7421   -> nft-collection punks/7421
//	alice.bob    -> social-pair [alice bob]
//	bob.4a2      -> rejected (mixed-alnum-segment)
//	ab           -> rejected (invalid-format, below minimum length)
//	""           -> rejected (unknown-shape)
package classify

import (
	"strings"

	"github.com/moltmail/moltmail/backend/models"
)

// AgentMarker is the reserved trailing character that authorizes
// automated provisioning. It is disallowed everywhere else in a name.
const AgentMarker = '_'

// Classify derives the typed classification of a raw address. The
// domain part, if present, is stripped; matching is case-insensitive.
func Classify(raw string) models.Classification {
	local := strings.ToLower(strings.TrimSpace(raw))
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}

	c := models.Classification{LocalPart: local}

	if local == "" {
		c.Stream = models.StreamUnknown
		c.Reject = models.RejectUnknownShape
		return c
	}

	// Rule 1: two-segment dot form, optional trailing agent marker.
	if seg1, seg2, ok := splitTwoSegments(local); ok {
		name := seg2
		if strings.HasSuffix(name, string(AgentMarker)) {
			c.AgentMarker = true
			name = name[:len(name)-1]
		}
		switch segmentClass(name) {
		case segDigits:
			c.Stream = models.StreamNFTCollection
			c.IdentityName = seg1 + "." + name
			c.Collection = seg1
			c.TokenID = name
		case segLetters:
			c.Stream = models.StreamSocialPair
			c.IdentityName = seg1 + "." + name
			c.SocialPair = []string{seg1, name}
		case segMixed:
			// Mixed digits and letters must never silently resolve
			// to either branch.
			c.Stream = models.StreamUnknown
			c.Reject = models.RejectMixedSegment
		default:
			c.Stream = models.StreamUnknown
			c.Reject = models.RejectUnknownShape
		}
		if c.Stream != models.StreamUnknown && segmentClass(seg1) != segLetters {
			// The first segment is a collection key or a handle,
			// never numeric or mixed.
			c.Stream = models.StreamUnknown
			c.Reject = models.RejectUnknownShape
			c.IdentityName, c.Collection, c.TokenID, c.SocialPair = "", "", "", nil
		}
		return c
	}

	// Rule 2: flat name with trailing agent marker. Agent names use
	// the same charset as sovereign names but skip the minimum-length
	// rule; short handles like "ab_" are legitimate agents.
	if strings.HasSuffix(local, string(AgentMarker)) {
		name := local[:len(local)-1]
		if !validName(name, 1) {
			c.Stream = models.StreamUnknown
			c.Reject = models.RejectInvalidFormat
			return c
		}
		c.Stream = models.StreamAgent
		c.IdentityName = name
		c.AgentMarker = true
		return c
	}

	// Rule 3: flat sovereign name, strict charset.
	if !validSovereignName(local) {
		c.Stream = models.StreamUnknown
		c.Reject = models.RejectInvalidFormat
		return c
	}
	c.Stream = models.StreamSovereign
	c.IdentityName = local
	return c
}

type segClass int

const (
	segInvalid segClass = iota
	segDigits
	segLetters
	segMixed
)

// segmentClass applies the digit-vs-letter gate to a dot segment.
func segmentClass(s string) segClass {
	if s == "" {
		return segInvalid
	}
	digits, letters := false, false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
		case r >= 'a' && r <= 'z':
			letters = true
		default:
			return segInvalid
		}
	}
	switch {
	case digits && letters:
		return segMixed
	case digits:
		return segDigits
	default:
		return segLetters
	}
}

// splitTwoSegments matches exactly one internal dot. Names with more
// dots fall through to the flat-name rules.
func splitTwoSegments(s string) (string, string, bool) {
	first := strings.IndexByte(s, '.')
	if first <= 0 || first == len(s)-1 {
		return "", "", false
	}
	if strings.IndexByte(s[first+1:], '.') >= 0 {
		return "", "", false
	}
	return s[:first], s[first+1:], true
}

// validSovereignName enforces the strict sovereign charset: minimum
// length 3, lowercase alphanumerics with internal single dot or
// hyphen, no leading/trailing or doubled separators, no agent marker.
func validSovereignName(s string) bool {
	return validName(s, 3)
}

func validName(s string, minLen int) bool {
	if len(s) < minLen {
		return false
	}
	prevSep := true // treats a leading separator as doubled
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			prevSep = false
		case ch == '.' || ch == '-':
			if prevSep || i == len(s)-1 {
				return false
			}
			prevSep = true
		default:
			return false
		}
	}
	return true
}
