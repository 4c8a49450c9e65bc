// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

var (
	// ErrInvalidCredential is returned when a password or recovery key
	// fails verification. It deliberately never says which one was wrong.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrLockedOut is returned while the lockout window is active. Use
	// errors.As with *LockedOutError to obtain the remaining time.
	ErrLockedOut = errors.New("too many failed attempts")

	// ErrNoCredentialSet is returned by flows that require a password
	// while protection is disabled. Protection being disabled is a valid
	// configuration, not a failure of the subsystem.
	ErrNoCredentialSet = errors.New("no master password is set")

	// ErrWeakPassword is returned when a candidate password fails the
	// minimum strength requirements.
	ErrWeakPassword = errors.New("password does not meet minimum requirements")
)

// LockedOutError carries the time remaining in the active lockout window
// so the UI can surface it. It unwraps to ErrLockedOut.
type LockedOutError struct {
	Remaining time.Duration
}

// Error implements error.
func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed attempts; locked for another %s",
		e.Remaining.Round(time.Second))
}

// Unwrap lets errors.Is(err, ErrLockedOut) match.
func (e *LockedOutError) Unwrap() error {
	return ErrLockedOut
}
