// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "wallet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMissingRowReturnsDefaults(t *testing.T) {
	s := openTestStore(t)

	settings, err := s.Load()
	require.NoError(t, err)

	assert.False(t, settings.Protected())
	assert.True(t, settings.AutoLockEnabled)
	assert.Equal(t, DefaultAutoLockTimeoutSecs, settings.AutoLockTimeoutSecs)
	assert.True(t, settings.OSLockIntegrationEnabled)
	assert.Zero(t, settings.FailedAttempts)
	assert.True(t, settings.LockoutUntil.IsZero())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	until := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Millisecond)
	in := &AuthSettings{
		PasswordHash:             "$2a$12$fakehashfakehashfakehash",
		RecoveryKeyHash:          "$2a$12$otherhashotherhashother",
		FailedAttempts:           3,
		LockoutUntil:             until,
		AutoLockEnabled:          false,
		AutoLockTimeoutSecs:      300,
		OSLockIntegrationEnabled: true,
		LastSuccessAt:            time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.Save(in))

	out, err := s.Load()
	require.NoError(t, err)

	assert.Equal(t, in.PasswordHash, out.PasswordHash)
	assert.Equal(t, in.RecoveryKeyHash, out.RecoveryKeyHash)
	assert.Equal(t, in.FailedAttempts, out.FailedAttempts)
	assert.True(t, in.LockoutUntil.Equal(out.LockoutUntil))
	assert.Equal(t, in.AutoLockEnabled, out.AutoLockEnabled)
	assert.Equal(t, in.AutoLockTimeoutSecs, out.AutoLockTimeoutSecs)
	assert.True(t, in.LastSuccessAt.Equal(out.LastSuccessAt))
}

// Lockout state must survive closing and reopening the database, which is
// how a process restart looks to this package.
func TestLockoutSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.db")

	s, err := Open(path)
	require.NoError(t, err)

	until := time.Now().Add(15 * time.Minute)
	settings := DefaultSettings()
	settings.PasswordHash = "$2a$12$hash"
	settings.RecoveryKeyHash = "$2a$12$rhash"
	settings.FailedAttempts = 5
	settings.LockoutUntil = until
	require.NoError(t, s.Save(settings))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.FailedAttempts)
	assert.True(t, loaded.LockoutUntil.Equal(until))
}

func TestSaveRejectsInvariantViolation(t *testing.T) {
	s := openTestStore(t)

	// Password without recovery key breaks the "exactly one recovery
	// path" invariant.
	bad := DefaultSettings()
	bad.PasswordHash = "$2a$12$hash"
	err := s.Save(bad)
	require.ErrorIs(t, err, ErrCorruptStore)

	bad = DefaultSettings()
	bad.FailedAttempts = -1
	require.ErrorIs(t, s.Save(bad), ErrCorruptStore)
}

func TestCorruptRowDetectedOnLoad(t *testing.T) {
	s := openTestStore(t)

	// Bypass Save validation to simulate on-disk corruption.
	_, err := s.db.Exec(`INSERT INTO auth_settings
		(id, password_hash, recovery_key_hash, failed_attempts, updated_at)
		VALUES (1, '$2a$12$hash', NULL, 0, 'now')`)
	require.NoError(t, err)

	_, err = s.Load()
	require.ErrorIs(t, err, ErrCorruptStore)
}

func TestCorruptTimestampDetectedOnLoad(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(`INSERT INTO auth_settings
		(id, password_hash, recovery_key_hash, failed_attempts, lockout_until, updated_at)
		VALUES (1, '$2a$12$h', '$2a$12$r', 2, 'not-a-timestamp', 'now')`)
	require.NoError(t, err)

	_, err = s.Load()
	require.ErrorIs(t, err, ErrCorruptStore)
}
