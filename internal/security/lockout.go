// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kzaklikiewicz/wallet-app/internal/store"
)

// =============================================================================
// LOCKOUT POLICY
// =============================================================================

const (
	// DefaultMaxAttempts is the number of consecutive failures before a
	// lockout is armed.
	DefaultMaxAttempts = 5

	// DefaultLockoutDuration is the length of one lockout window.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockoutDecision is the outcome of recording a failed attempt.
type LockoutDecision struct {
	// Attempts is the consecutive failure count after this attempt.
	Attempts int

	// LockedOut reports whether this attempt armed a lockout.
	LockedOut bool

	// Until is the lockout expiry when LockedOut is true.
	Until time.Time
}

// LockoutPolicy tracks consecutive failed attempts against the persisted
// auth settings row.
//
// The failure counter resets only on a successful verification, never on
// lockout expiry. After a window expires, exactly one attempt proceeds to
// verification; if it fails, the already-at-threshold counter re-arms a
// full window immediately. Repeated guessing therefore costs one attempt
// per window (~288 attempts/day at the defaults), which is the property
// the whole policy exists to provide.
//
// SECURITY: every state change is persisted before the method returns, so
// killing the process between a failed attempt and its lockout cannot
// erase either.
type LockoutPolicy struct {
	store       store.AuthStore
	maxAttempts int
	duration    time.Duration
	clock       func() time.Time
	audit       *AuditLogger
}

// LockoutOption is a functional option for configuring LockoutPolicy.
type LockoutOption func(*LockoutPolicy)

// WithMaxAttempts sets the failure threshold.
func WithMaxAttempts(n int) LockoutOption {
	return func(p *LockoutPolicy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithLockoutDuration sets the lockout window length.
func WithLockoutDuration(d time.Duration) LockoutOption {
	return func(p *LockoutPolicy) {
		if d > 0 {
			p.duration = d
		}
	}
}

// WithLockoutClock injects a clock for tests.
func WithLockoutClock(clock func() time.Time) LockoutOption {
	return func(p *LockoutPolicy) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLockoutAudit sets the audit logger for lockout events.
func WithLockoutAudit(audit *AuditLogger) LockoutOption {
	return func(p *LockoutPolicy) {
		p.audit = audit
	}
}

// NewLockoutPolicy creates a policy over the given store.
func NewLockoutPolicy(st store.AuthStore, opts ...LockoutOption) *LockoutPolicy {
	p := &LockoutPolicy{
		store:       st,
		maxAttempts: DefaultMaxAttempts,
		duration:    DefaultLockoutDuration,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check returns a *LockedOutError when the lockout window is still active.
// It must run BEFORE any hashing so a locked-out attacker consumes no
// verification cycles and observes no hash timing.
func (p *LockoutPolicy) Check() error {
	settings, err := p.store.Load()
	if err != nil {
		return err
	}
	now := p.clock()

	if !settings.LockoutUntil.IsZero() && now.Before(settings.LockoutUntil) {
		remaining := settings.LockoutUntil.Sub(now)
		p.audit.Log(AuditEventLockoutRejected, false, map[string]string{
			"remaining": remaining.Round(time.Second).String(),
		})
		return &LockedOutError{Remaining: remaining}
	}
	return nil
}

// RecordFailure increments the failure counter and arms a lockout at the
// threshold. The new state is durable before the decision is returned.
func (p *LockoutPolicy) RecordFailure() (LockoutDecision, error) {
	settings, err := p.store.Load()
	if err != nil {
		return LockoutDecision{}, err
	}

	settings.FailedAttempts++
	decision := LockoutDecision{Attempts: settings.FailedAttempts}

	if settings.FailedAttempts >= p.maxAttempts {
		decision.LockedOut = true
		decision.Until = p.clock().Add(p.duration)
		settings.LockoutUntil = decision.Until
	}

	if err := p.store.Save(settings); err != nil {
		return LockoutDecision{}, fmt.Errorf("failed to persist lockout state: %w", err)
	}

	if decision.LockedOut {
		p.audit.Log(AuditEventLockout, false, map[string]string{
			"attempts": strconv.Itoa(decision.Attempts),
			"until":    decision.Until.UTC().Format(time.RFC3339),
		})
	}
	return decision, nil
}

// RecordSuccess clears the failure counter and any lockout, and stamps
// last_success_at.
func (p *LockoutPolicy) RecordSuccess() error {
	settings, err := p.store.Load()
	if err != nil {
		return err
	}

	settings.FailedAttempts = 0
	settings.LockoutUntil = time.Time{}
	settings.LastSuccessAt = p.clock()

	if err := p.store.Save(settings); err != nil {
		return fmt.Errorf("failed to persist lockout reset: %w", err)
	}
	return nil
}

// Remaining returns the time left in the active lockout window, or zero.
func (p *LockoutPolicy) Remaining() (time.Duration, error) {
	settings, err := p.store.Load()
	if err != nil {
		return 0, err
	}
	remaining := settings.LockoutUntil.Sub(p.clock())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
