// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/kzaklikiewicz/wallet-app/internal/store"
)

// =============================================================================
// AUTH MANAGER
// =============================================================================

// AuthManager owns the credential lifecycle: setting, changing and
// verifying the master password, and issuing and redeeming recovery keys.
// All verification attempts flow through the LockoutPolicy first, so a
// locked-out caller never reaches the hasher.
//
// SECURITY: plaintext secrets are parameters only; they are never stored
// on the manager, persisted, or logged. Verification failures return
// ErrInvalidCredential regardless of which credential was wrong.
type AuthManager struct {
	store   store.AuthStore
	hasher  *Hasher
	lockout *LockoutPolicy
	audit   *AuditLogger
	clock   func() time.Time

	// mu makes every load-modify-save cycle atomic against concurrent
	// callers (the config watcher writes settings while logins run).
	mu sync.Mutex
}

// AuthOption is a functional option for configuring AuthManager.
type AuthOption func(*AuthManager)

// WithAudit sets the audit logger.
func WithAudit(audit *AuditLogger) AuthOption {
	return func(m *AuthManager) {
		m.audit = audit
	}
}

// WithHasher replaces the default hasher. Tests use this to run at a
// reduced bcrypt cost.
func WithHasher(h *Hasher) AuthOption {
	return func(m *AuthManager) {
		if h != nil {
			m.hasher = h
		}
	}
}

// WithLockoutPolicy replaces the default lockout policy.
func WithLockoutPolicy(p *LockoutPolicy) AuthOption {
	return func(m *AuthManager) {
		if p != nil {
			m.lockout = p
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(clock func() time.Time) AuthOption {
	return func(m *AuthManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewAuthManager creates an AuthManager over the given store.
func NewAuthManager(st store.AuthStore, opts ...AuthOption) *AuthManager {
	m := &AuthManager{
		store:  st,
		hasher: NewHasher(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.lockout == nil {
		m.lockout = NewLockoutPolicy(st,
			WithLockoutClock(m.clock),
			WithLockoutAudit(m.audit))
	}
	return m
}

// Lockout exposes the policy for status queries (remaining time display).
func (m *AuthManager) Lockout() *LockoutPolicy {
	return m.lockout
}

// Protected reports whether a master password is currently set.
func (m *AuthManager) Protected() (bool, error) {
	settings, err := m.store.Load()
	if err != nil {
		return false, err
	}
	return settings.Protected(), nil
}

// Settings returns a snapshot of the persisted auth settings.
func (m *AuthManager) Settings() (*store.AuthSettings, error) {
	return m.store.Load()
}

// =============================================================================
// VERIFICATION
// =============================================================================

// VerifyPassword checks the master password. Returns nil when protection
// is disabled (NO_CREDENTIAL_SET is a valid configuration, not an error),
// *LockedOutError during an active lockout window, ErrInvalidCredential on
// mismatch. Failure and lockout state are durable before return.
func (m *AuthManager) VerifyPassword(password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyPasswordLocked(password)
}

func (m *AuthManager) verifyPasswordLocked(password string) error {
	settings, err := m.store.Load()
	if err != nil {
		return err
	}
	if !settings.Protected() {
		return nil
	}

	// Lockout check runs before any hashing.
	if err := m.lockout.Check(); err != nil {
		return err
	}

	if !m.hasher.Verify(password, settings.PasswordHash) {
		decision, ferr := m.lockout.RecordFailure()
		if ferr != nil {
			return ferr
		}
		m.audit.Log(AuditEventLoginFailure, false, map[string]string{
			"attempts": strconv.Itoa(decision.Attempts),
		})
		return ErrInvalidCredential
	}

	if err := m.lockout.RecordSuccess(); err != nil {
		return err
	}
	m.audit.Log(AuditEventLoginSuccess, true, nil)
	return nil
}

// RedeemRecoveryKey checks a recovery key candidate. It shares the lockout
// budget and failure accounting with password verification, and its errors
// are indistinguishable from a wrong password.
func (m *AuthManager) RedeemRecoveryKey(candidate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redeemRecoveryKeyLocked(candidate)
}

func (m *AuthManager) redeemRecoveryKeyLocked(candidate string) error {
	settings, err := m.store.Load()
	if err != nil {
		return err
	}
	if !settings.Protected() {
		return ErrNoCredentialSet
	}

	if err := m.lockout.Check(); err != nil {
		return err
	}

	normalized := NormalizeRecoveryKey(candidate)
	if normalized == "" || !m.hasher.Verify(normalized, settings.RecoveryKeyHash) {
		decision, ferr := m.lockout.RecordFailure()
		if ferr != nil {
			return ferr
		}
		m.audit.Log(AuditEventLoginFailure, false, map[string]string{
			"attempts": strconv.Itoa(decision.Attempts),
			"method":   "recovery_key",
		})
		return ErrInvalidCredential
	}
	return nil
}

// =============================================================================
// CREDENTIAL LIFECYCLE
// =============================================================================

// SetPassword enables protection with the given master password and
// returns the plaintext recovery key exactly once for display/export.
// Fails if a password is already set; use ChangePassword for rotation.
func (m *AuthManager) SetPassword(password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, err := m.store.Load()
	if err != nil {
		return "", err
	}
	if settings.Protected() {
		return "", fmt.Errorf("master password already set; use change-password")
	}

	recoveryKey, err := m.applyNewCredentialLocked(settings, password)
	if err != nil {
		return "", err
	}
	m.audit.Log(AuditEventPasswordSet, true, nil)
	return recoveryKey, nil
}

// ChangePassword rotates the master password after verifying the current
// one. The old recovery key is invalidated the instant the new password is
// saved; the returned plaintext is the only copy of the new key.
func (m *AuthManager) ChangePassword(current, newPassword string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, err := m.store.Load()
	if err != nil {
		return "", err
	}
	if !settings.Protected() {
		return "", ErrNoCredentialSet
	}

	if err := m.verifyPasswordLocked(current); err != nil {
		return "", err
	}

	// Reload: verification cleared the failure counter.
	settings, err = m.store.Load()
	if err != nil {
		return "", err
	}
	recoveryKey, err := m.applyNewCredentialLocked(settings, newPassword)
	if err != nil {
		return "", err
	}
	m.audit.Log(AuditEventPasswordChanged, true, nil)
	return recoveryKey, nil
}

// ResetWithRecoveryKey redeems a recovery key and, in the same operation,
// installs a new master password with a fresh recovery key and clears the
// failure counter and lockout. This is the only path past a forgotten
// password; losing both credentials is terminal.
func (m *AuthManager) ResetWithRecoveryKey(candidate, newPassword string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.redeemRecoveryKeyLocked(candidate); err != nil {
		return "", err
	}

	settings, err := m.store.Load()
	if err != nil {
		return "", err
	}
	settings.FailedAttempts = 0
	settings.LockoutUntil = time.Time{}
	settings.LastSuccessAt = m.clock()

	recoveryKey, err := m.applyNewCredentialLocked(settings, newPassword)
	if err != nil {
		return "", err
	}
	m.audit.Log(AuditEventRecoveryReset, true, nil)
	return recoveryKey, nil
}

// DisableProtection verifies the current password and removes the
// credential, returning the store to the unprotected configuration.
func (m *AuthManager) DisableProtection(current string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, err := m.store.Load()
	if err != nil {
		return err
	}
	if !settings.Protected() {
		return ErrNoCredentialSet
	}

	if err := m.verifyPasswordLocked(current); err != nil {
		return err
	}

	settings, err = m.store.Load()
	if err != nil {
		return err
	}
	settings.PasswordHash = ""
	settings.RecoveryKeyHash = ""
	settings.FailedAttempts = 0
	settings.LockoutUntil = time.Time{}
	if err := m.store.Save(settings); err != nil {
		return err
	}
	m.audit.Log(AuditEventProtectionOff, true, nil)
	return nil
}

// applyNewCredentialLocked hashes and saves a new password plus a freshly
// issued recovery key on top of settings, then returns the key plaintext.
// Both digests land in one Save, so there is never an overlap window where
// the old recovery key is still redeemable against a new password.
func (m *AuthManager) applyNewCredentialLocked(settings *store.AuthSettings, password string) (string, error) {
	if strength := CheckPasswordStrength(password); strength.Score == 0 {
		return "", ErrWeakPassword
	}

	passwordHash, err := m.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	recoveryKey, err := GenerateRecoveryKey()
	if err != nil {
		return "", err
	}
	recoveryHash, err := m.hasher.Hash(recoveryKey)
	if err != nil {
		return "", fmt.Errorf("failed to hash recovery key: %w", err)
	}

	settings.PasswordHash = passwordHash
	settings.RecoveryKeyHash = recoveryHash
	if err := m.store.Save(settings); err != nil {
		return "", err
	}

	m.audit.Log(AuditEventRecoveryIssued, true, nil)
	return recoveryKey, nil
}

// =============================================================================
// SETTINGS UPDATES
// =============================================================================

// UpdateAutoLock sets the idle auto-lock configuration.
func (m *AuthManager) UpdateAutoLock(enabled bool, timeoutSecs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, err := m.store.Load()
	if err != nil {
		return err
	}
	settings.AutoLockEnabled = enabled
	if timeoutSecs > 0 {
		settings.AutoLockTimeoutSecs = timeoutSecs
	}
	return m.store.Save(settings)
}

// UpdateOSLockIntegration sets whether host session events trigger a lock.
func (m *AuthManager) UpdateOSLockIntegration(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, err := m.store.Load()
	if err != nil {
		return err
	}
	settings.OSLockIntegrationEnabled = enabled
	return m.store.Save(settings)
}
