// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

// Package security implements the authentication and session-lock core of
// the wallet app: credential hashing, lockout policy, recovery keys, the
// session state machine, idle monitoring and the host session bridge.
package security

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the fixed bcrypt work factor (2^12 internal iterations).
// Raising it invalidates nothing - old digests carry their own cost and
// keep verifying - but all new digests are minted at this cost.
const BcryptCost = 12

// Hasher provides one-way hashing and verification for the master password
// and recovery key.
//
// SECURITY: every Hash call generates a fresh random salt, so hashing the
// same secret twice yields different digests. Verification is delegated to
// bcrypt, whose comparison does not short-circuit on the first differing
// character.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the fixed production cost.
func NewHasher() *Hasher {
	return &Hasher{cost: BcryptCost}
}

// Hash derives a salted digest of secret. The plaintext is not retained
// after the call returns.
func (h *Hasher) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether secret matches digest. A malformed digest (for
// example, corrupted storage) is a verification failure, never a panic.
func (h *Hasher) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
