// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckPasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		score    int
	}{
		{"empty", "", 0},
		{"below minimum length", "short77", 0},
		{"bare minimum lowercase", "abcdefgh", 1},
		{"long mixed with symbols", "Tr0ub4dor&Horse!", 4},
		{"digits and lowercase", "abcd1234", 2},
		{"upper lower digits 12+", "Wallet2025Secure", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckPasswordStrength(tt.password)
			assert.Equal(t, tt.score, got.Score)
			assert.NotEmpty(t, got.Label)
		})
	}
}

func TestStrengthScoreBounds(t *testing.T) {
	for _, pw := range []string{"aaaaaaaa", "AAAAAAAAAAAAAAAAAAAA!@#123abc"} {
		s := CheckPasswordStrength(pw)
		assert.GreaterOrEqual(t, s.Score, 1)
		assert.LessOrEqual(t, s.Score, 4)
	}
}

func TestStrengthBarWidth(t *testing.T) {
	for _, pw := range []string{"", "abcdefgh", "Tr0ub4dor&Horse!"} {
		s := CheckPasswordStrength(pw)
		// Four meter cells regardless of score.
		assert.Len(t, []rune(s.Bar()), 4)
	}
}
