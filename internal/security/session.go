// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"errors"
	"sync"
	"time"
)

// =============================================================================
// SESSION STATE
// =============================================================================

// SessionState is the authoritative lock state of the application.
type SessionState int

const (
	// StateLocked means no application data or UI content may be shown.
	StateLocked SessionState = iota
	// StateUnlocked means the user has authenticated (or protection is
	// disabled).
	StateUnlocked
)

// String returns a string representation of the SessionState.
func (s SessionState) String() string {
	switch s {
	case StateLocked:
		return "LOCKED"
	case StateUnlocked:
		return "UNLOCKED"
	default:
		return "UNKNOWN"
	}
}

// TransitionCause identifies what drove a state transition.
type TransitionCause string

const (
	CauseLoginSuccess TransitionCause = "login_success"
	CauseLoginFailure TransitionCause = "login_failure"
	CauseLockout      TransitionCause = "lockout"
	CauseIdleTimeout  TransitionCause = "idle_timeout"
	CauseOSEvent      TransitionCause = "os_event"
	CauseManualLogout TransitionCause = "manual_logout"
)

// Transition is delivered to observers on every state machine event,
// including failed logins (LOCKED -> LOCKED).
type Transition struct {
	From  SessionState
	To    SessionState
	Cause TransitionCause
	// Source names the producer for lock requests (e.g. "idle_monitor",
	// "SCREEN_LOCKED").
	Source string
	At     time.Time
}

// LockRequest asks the state machine to lock. Requests are unconditional
// and cannot be cancelled once emitted.
type LockRequest struct {
	Cause  TransitionCause
	Source string
}

// =============================================================================
// SESSION MACHINE
// =============================================================================

// SessionMachine composes credential verification, lockout and lock
// requests into the single authoritative UNLOCKED/LOCKED state.
//
// All transitions are serialized under one mutex: the lock-request
// consumer and Login contend for it, so a lock request arriving while a
// login attempt is in flight takes effect immediately after that attempt
// resolves - never before, never dropped. A login, once started, runs to
// completion.
type SessionMachine struct {
	auth  *AuthManager
	audit *AuditLogger
	clock func() time.Time

	// mu serializes every transition. At most one is in flight.
	mu    sync.Mutex
	state SessionState

	requests chan LockRequest
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	obsMu     sync.RWMutex
	observers []func(Transition)
}

// SessionOption is a functional option for configuring SessionMachine.
type SessionOption func(*SessionMachine)

// WithSessionAudit sets the audit logger for session transitions.
func WithSessionAudit(audit *AuditLogger) SessionOption {
	return func(m *SessionMachine) {
		m.audit = audit
	}
}

// WithSessionClock injects a clock for tests.
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(m *SessionMachine) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewSessionMachine constructs the machine with its initial state computed
// from the credential store: LOCKED when a password is set, UNLOCKED
// otherwise. Nothing observes the machine before construction completes,
// so no caller can ever see UNLOCKED ahead of that decision. A corrupt
// store fails construction; the application must refuse to unlock.
func NewSessionMachine(auth *AuthManager, opts ...SessionOption) (*SessionMachine, error) {
	m := &SessionMachine{
		auth:     auth,
		clock:    time.Now,
		requests: make(chan LockRequest, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	protected, err := auth.Protected()
	if err != nil {
		return nil, err
	}
	if protected {
		m.state = StateLocked
	} else {
		m.state = StateUnlocked
	}
	return m, nil
}

// Start launches the lock-request consumer.
func (m *SessionMachine) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case req := <-m.requests:
				m.applyLock(req.Cause, req.Source)
			case <-m.done:
				return
			}
		}
	}()
}

// Stop shuts down the consumer. Pending requests already applied stay
// applied; the machine remains queryable.
func (m *SessionMachine) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

// Requests is the channel producers (idle monitor, OS bridge) emit lock
// requests into.
func (m *SessionMachine) Requests() chan<- LockRequest {
	return m.requests
}

// State returns the current session state.
func (m *SessionMachine) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers an observer for transitions. Observers run after the
// transition is committed and must not block.
func (m *SessionMachine) Subscribe(fn func(Transition)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, fn)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Login attempts to unlock with the master password. The whole attempt,
// verification included, holds the transition mutex.
func (m *SessionMachine) Login(password string) error {
	m.mu.Lock()

	if m.state == StateUnlocked {
		m.mu.Unlock()
		return nil
	}

	err := m.auth.VerifyPassword(password)
	switch {
	case err == nil:
		t := m.transitionLocked(StateUnlocked, CauseLoginSuccess, "")
		m.mu.Unlock()
		m.notify(t)
		return nil
	case errors.Is(err, ErrLockedOut):
		t := m.failureLocked(CauseLockout)
		m.mu.Unlock()
		m.notify(t)
		return err
	case errors.Is(err, ErrInvalidCredential):
		t := m.failureLocked(CauseLoginFailure)
		m.mu.Unlock()
		m.notify(t)
		return err
	default:
		// Store failure: stay locked, surface the error.
		m.mu.Unlock()
		return err
	}
}

// LoginWithRecoveryReset redeems a recovery key, installs newPassword and
// unlocks. Returns the fresh recovery key plaintext for one-time display.
func (m *SessionMachine) LoginWithRecoveryReset(candidate, newPassword string) (string, error) {
	m.mu.Lock()

	recoveryKey, err := m.auth.ResetWithRecoveryKey(candidate, newPassword)
	switch {
	case err == nil:
		t := m.transitionLocked(StateUnlocked, CauseLoginSuccess, "recovery")
		m.mu.Unlock()
		m.notify(t)
		return recoveryKey, nil
	case errors.Is(err, ErrLockedOut):
		t := m.failureLocked(CauseLockout)
		m.mu.Unlock()
		m.notify(t)
		return "", err
	case errors.Is(err, ErrInvalidCredential):
		t := m.failureLocked(CauseLoginFailure)
		m.mu.Unlock()
		m.notify(t)
		return "", err
	default:
		m.mu.Unlock()
		return "", err
	}
}

// Logout locks in response to an explicit user action. Confirmation UX is
// the caller's responsibility; the transition itself is unconditional.
func (m *SessionMachine) Logout() {
	m.applyLock(CauseManualLogout, "user")
}

// applyLock performs the UNLOCKED -> LOCKED transition. Idempotent while
// already LOCKED: no transition is recorded and observers stay quiet.
func (m *SessionMachine) applyLock(cause TransitionCause, source string) {
	m.mu.Lock()
	if m.state == StateLocked {
		m.mu.Unlock()
		return
	}
	t := m.transitionLocked(StateLocked, cause, source)
	m.mu.Unlock()
	m.notify(t)
}

// transitionLocked commits a state change. Caller holds m.mu.
func (m *SessionMachine) transitionLocked(to SessionState, cause TransitionCause, source string) Transition {
	t := Transition{
		From:   m.state,
		To:     to,
		Cause:  cause,
		Source: source,
		At:     m.clock(),
	}
	m.state = to

	event := AuditEventSessionLocked
	if to == StateUnlocked {
		event = AuditEventSessionUnlocked
	}
	m.audit.Log(event, true, map[string]string{
		"cause":  string(cause),
		"source": source,
	})
	return t
}

// failureLocked records a LOCKED -> LOCKED event for observers without a
// state change. Caller holds m.mu.
func (m *SessionMachine) failureLocked(cause TransitionCause) Transition {
	return Transition{
		From:  m.state,
		To:    m.state,
		Cause: cause,
		At:    m.clock(),
	}
}

// notify delivers a transition to all observers outside the transition
// mutex, so observers may query State().
func (m *SessionMachine) notify(t Transition) {
	m.obsMu.RLock()
	observers := make([]func(Transition), len(m.observers))
	copy(observers, m.observers)
	m.obsMu.RUnlock()

	for _, fn := range observers {
		fn(t)
	}
}
