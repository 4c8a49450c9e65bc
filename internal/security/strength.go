// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"strings"
	"unicode"
)

// MinPasswordLength is the minimum accepted master password length.
const MinPasswordLength = 8

// PasswordStrength is a coarse 0-4 score for the setup and change-password
// flows. It is advisory beyond the hard minimum length.
type PasswordStrength struct {
	// Score ranges 0 (rejected) to 4 (strong).
	Score int

	// Label is a short human-readable description of the score.
	Label string
}

// strengthLabels maps scores to display labels.
var strengthLabels = [5]string{
	"too short",
	"weak",
	"fair",
	"good",
	"strong",
}

// CheckPasswordStrength scores a candidate password. A password shorter
// than MinPasswordLength always scores 0 and is rejected by the credential
// flows.
func CheckPasswordStrength(password string) PasswordStrength {
	if len(password) < MinPasswordLength {
		return PasswordStrength{Score: 0, Label: strengthLabels[0]}
	}

	var points float64
	if len(password) >= 12 {
		points += 1
	} else {
		points += 0.5
	}

	var hasLower, hasUpper, hasDigit, hasPunct bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasPunct = true
		}
	}
	if hasLower {
		points += 0.5
	}
	if hasUpper {
		points += 0.5
	}
	if hasDigit {
		points += 0.5
	}
	if hasPunct {
		points += 1
	}

	// Round half up so a full-house password lands on "strong".
	score := int(points + 0.5)
	if score < 1 {
		score = 1
	}
	if score > 4 {
		score = 4
	}
	return PasswordStrength{Score: score, Label: strengthLabels[score]}
}

// Bar renders the score as a fixed-width meter for terminal display.
func (p PasswordStrength) Bar() string {
	return strings.Repeat("█", p.Score) + strings.Repeat("░", 4-p.Score)
}
