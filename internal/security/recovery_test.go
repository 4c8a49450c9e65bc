// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRecoveryKeyFormat(t *testing.T) {
	key, err := GenerateRecoveryKey()
	require.NoError(t, err)

	// XXXX-XXXX-XXXX-XXXX
	assert.Len(t, key, 19)
	groups := strings.Split(key, "-")
	require.Len(t, groups, 4)
	for _, g := range groups {
		assert.Len(t, g, 4)
		for _, r := range g {
			assert.Contains(t, recoveryAlphabet, string(r))
		}
	}
}

func TestGenerateRecoveryKeyExcludesAmbiguousSymbols(t *testing.T) {
	for _, forbidden := range []string{"O", "I", "0", "1"} {
		assert.NotContains(t, recoveryAlphabet, forbidden)
	}
	assert.Len(t, recoveryAlphabet, 32)

	for i := 0; i < 50; i++ {
		key, err := GenerateRecoveryKey()
		require.NoError(t, err)
		assert.NotContainsf(t, key, "O", "key %s", key)
		assert.NotContainsf(t, key, "I", "key %s", key)
		assert.NotContainsf(t, key, "0", "key %s", key)
	}
}

func TestGenerateRecoveryKeyIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := GenerateRecoveryKey()
		require.NoError(t, err)
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestNormalizeRecoveryKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"canonical", "K7PQ-2MXV-9RTD-H4WN", "K7PQ-2MXV-9RTD-H4WN"},
		{"lowercase", "k7pq-2mxv-9rtd-h4wn", "K7PQ-2MXV-9RTD-H4WN"},
		{"no hyphens", "K7PQ2MXV9RTDH4WN", "K7PQ-2MXV-9RTD-H4WN"},
		{"spaces and padding", "  K7PQ 2MXV 9RTD H4WN ", "K7PQ-2MXV-9RTD-H4WN"},
		{"too short", "K7PQ-2MXV", ""},
		{"too long", "K7PQ-2MXV-9RTD-H4WN-ABCD", ""},
		{"ambiguous symbol", "K7PQ-2MXV-9RTD-H4W0", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRecoveryKey(tt.input))
		})
	}
}
