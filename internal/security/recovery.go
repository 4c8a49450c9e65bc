// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// =============================================================================
// RECOVERY KEY GENERATION
// =============================================================================

// recoveryAlphabet is the 32-symbol alphabet for recovery keys: uppercase
// letters and digits with the visually ambiguous O, I, 0 and 1 removed.
const recoveryAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	recoveryGroups    = 4
	recoveryGroupSize = 4
)

// RecoveryKeyEntropyBits is the entropy of a generated key: 16 symbols
// from a 32-symbol alphabet, 32^16 = 2^80 combinations.
const RecoveryKeyEntropyBits = 80

// GenerateRecoveryKey returns a fresh recovery key formatted as four
// hyphen-separated groups of four symbols, e.g. "K7PQ-2MXV-9RTD-H4WN".
//
// SECURITY: symbols are drawn from crypto/rand. The plaintext exists only
// to be shown or exported once; callers must never log or cache it.
func GenerateRecoveryKey() (string, error) {
	alphabetLen := big.NewInt(int64(len(recoveryAlphabet)))

	groups := make([]string, 0, recoveryGroups)
	var sb strings.Builder
	for g := 0; g < recoveryGroups; g++ {
		sb.Reset()
		for i := 0; i < recoveryGroupSize; i++ {
			n, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				return "", fmt.Errorf("cryptographic random generation failed: %w", err)
			}
			sb.WriteByte(recoveryAlphabet[n.Int64()])
		}
		groups = append(groups, sb.String())
	}

	return strings.Join(groups, "-"), nil
}

// NormalizeRecoveryKey canonicalizes user input for verification: trims
// whitespace, uppercases, and re-inserts group hyphens. Returns an empty
// string if the input cannot be a recovery key, which lets verification
// fail without touching the hasher.
func NormalizeRecoveryKey(input string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(input))
	cleaned = strings.NewReplacer("-", "", " ", "").Replace(cleaned)

	if len(cleaned) != recoveryGroups*recoveryGroupSize {
		return ""
	}
	for i := 0; i < len(cleaned); i++ {
		if !strings.ContainsRune(recoveryAlphabet, rune(cleaned[i])) {
			return ""
		}
	}

	groups := make([]string, 0, recoveryGroups)
	for g := 0; g < recoveryGroups; g++ {
		groups = append(groups, cleaned[g*recoveryGroupSize:(g+1)*recoveryGroupSize])
	}
	return strings.Join(groups, "-")
}
