// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

// Package store persists the singleton authentication settings row.
//
// The rest of the application talks to this package through the AuthStore
// interface only; no SQL leaks past this boundary. Both Load and Save are
// durable before they return, so lockout state written here survives a
// crash or forced restart.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrCorruptStore indicates the auth settings row is unreadable or
	// violates its invariants. The caller must refuse to unlock rather
	// than silently disable protection.
	ErrCorruptStore = errors.New("auth settings store is corrupt")
)

// =============================================================================
// AUTH SETTINGS
// =============================================================================

// DefaultAutoLockTimeoutSecs is the default idle threshold: 30 minutes.
const DefaultAutoLockTimeoutSecs = 1800

// AuthSettings is the single persisted record of the authentication
// subsystem. Hash fields are bcrypt digests; an empty PasswordHash means
// protection is disabled.
type AuthSettings struct {
	// PasswordHash is the bcrypt digest of the master password.
	PasswordHash string

	// RecoveryKeyHash is the bcrypt digest of the current recovery key.
	// Non-empty exactly when PasswordHash is non-empty.
	RecoveryKeyHash string

	// FailedAttempts counts consecutive failed verifications. Reset to 0
	// only by a successful verification.
	FailedAttempts int

	// LockoutUntil is the lockout expiry. Zero means not locked out.
	LockoutUntil time.Time

	// AutoLockEnabled controls idle-based locking.
	AutoLockEnabled bool

	// AutoLockTimeoutSecs is the idle threshold in seconds.
	AutoLockTimeoutSecs int

	// OSLockIntegrationEnabled controls locking on host session events.
	OSLockIntegrationEnabled bool

	// LastSuccessAt is the time of the last successful verification.
	LastSuccessAt time.Time
}

// Protected reports whether a master password is set.
func (s *AuthSettings) Protected() bool {
	return s.PasswordHash != ""
}

// DefaultSettings returns the settings used before a password is set.
func DefaultSettings() *AuthSettings {
	return &AuthSettings{
		AutoLockEnabled:          true,
		AutoLockTimeoutSecs:      DefaultAutoLockTimeoutSecs,
		OSLockIntegrationEnabled: true,
	}
}

// validate checks the row invariants.
func (s *AuthSettings) validate() error {
	if (s.PasswordHash == "") != (s.RecoveryKeyHash == "") {
		return fmt.Errorf("%w: password and recovery hashes out of sync", ErrCorruptStore)
	}
	if s.FailedAttempts < 0 {
		return fmt.Errorf("%w: negative failed attempt count", ErrCorruptStore)
	}
	if s.AutoLockTimeoutSecs <= 0 {
		return fmt.Errorf("%w: non-positive auto-lock timeout", ErrCorruptStore)
	}
	return nil
}

// =============================================================================
// AUTH STORE INTERFACE
// =============================================================================

// AuthStore is the narrow persistence boundary the security packages use.
// Implementations must make each call durable before returning.
type AuthStore interface {
	// Load returns the current settings. A missing row yields
	// DefaultSettings, not an error; a malformed row yields
	// ErrCorruptStore.
	Load() (*AuthSettings, error)

	// Save persists the settings durably.
	Save(*AuthSettings) error
}

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore is the production AuthStore backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the auth_settings schema exists.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// RELIABILITY: synchronous=FULL makes commits durable before they
	// return, which the lockout contract depends on.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements AuthStore.
func (s *SQLiteStore) Load() (*AuthSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT password_hash, recovery_key_hash, failed_attempts,
		       lockout_until, auto_lock_enabled, auto_lock_timeout_seconds,
		       os_lock_integration_enabled, last_success_at
		FROM auth_settings WHERE id = 1`)

	var (
		passwordHash  sql.NullString
		recoveryHash  sql.NullString
		failed        int
		lockoutUntil  sql.NullString
		autoLock      bool
		timeoutSecs   int
		osIntegration bool
		lastSuccess   sql.NullString
	)
	err := row.Scan(&passwordHash, &recoveryHash, &failed, &lockoutUntil,
		&autoLock, &timeoutSecs, &osIntegration, &lastSuccess)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}

	settings := &AuthSettings{
		PasswordHash:             passwordHash.String,
		RecoveryKeyHash:          recoveryHash.String,
		FailedAttempts:           failed,
		AutoLockEnabled:          autoLock,
		AutoLockTimeoutSecs:      timeoutSecs,
		OSLockIntegrationEnabled: osIntegration,
	}
	if settings.LockoutUntil, err = parseTime(lockoutUntil); err != nil {
		return nil, fmt.Errorf("%w: bad lockout_until: %v", ErrCorruptStore, err)
	}
	if settings.LastSuccessAt, err = parseTime(lastSuccess); err != nil {
		return nil, fmt.Errorf("%w: bad last_success_at: %v", ErrCorruptStore, err)
	}

	if err := settings.validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Save implements AuthStore. The row is upserted inside a transaction and
// committed before Save returns.
func (s *SQLiteStore) Save(settings *AuthSettings) error {
	if err := settings.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO auth_settings (
			id, password_hash, recovery_key_hash, failed_attempts,
			lockout_until, auto_lock_enabled, auto_lock_timeout_seconds,
			os_lock_integration_enabled, last_success_at, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			password_hash               = excluded.password_hash,
			recovery_key_hash           = excluded.recovery_key_hash,
			failed_attempts             = excluded.failed_attempts,
			lockout_until               = excluded.lockout_until,
			auto_lock_enabled           = excluded.auto_lock_enabled,
			auto_lock_timeout_seconds   = excluded.auto_lock_timeout_seconds,
			os_lock_integration_enabled = excluded.os_lock_integration_enabled,
			last_success_at             = excluded.last_success_at,
			updated_at                  = excluded.updated_at`,
		nullString(settings.PasswordHash),
		nullString(settings.RecoveryKeyHash),
		settings.FailedAttempts,
		formatTime(settings.LockoutUntil),
		settings.AutoLockEnabled,
		settings.AutoLockTimeoutSecs,
		settings.OSLockIntegrationEnabled,
		formatTime(settings.LastSuccessAt),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save auth settings: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
