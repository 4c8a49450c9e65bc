// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transitionRecorder collects observer callbacks for assertions.
type transitionRecorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *transitionRecorder) record(t Transition) {
	r.mu.Lock()
	r.transitions = append(r.transitions, t)
	r.mu.Unlock()
}

func (r *transitionRecorder) all() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.transitions))
	copy(out, r.transitions)
	return out
}

func (r *transitionRecorder) waitFor(t *testing.T, n int) []Transition {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.all(); len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d transitions, have %d", n, len(r.all()))
	return nil
}

func protectedMachine(t *testing.T, password string) (*SessionMachine, *transitionRecorder) {
	t.Helper()
	st := newMemStore()
	auth := testAuthManager(st, newFakeClock())
	_, err := auth.SetPassword(password)
	require.NoError(t, err)

	m, err := NewSessionMachine(auth)
	require.NoError(t, err)

	rec := &transitionRecorder{}
	m.Subscribe(rec.record)
	m.Start()
	t.Cleanup(m.Stop)
	return m, rec
}

func TestInitialStateFollowsProtection(t *testing.T) {
	st := newMemStore()
	auth := testAuthManager(st, newFakeClock())

	m, err := NewSessionMachine(auth)
	require.NoError(t, err)
	assert.Equal(t, StateUnlocked, m.State())

	_, err = auth.SetPassword("hunter22hunter22")
	require.NoError(t, err)

	m2, err := NewSessionMachine(auth)
	require.NoError(t, err)
	assert.Equal(t, StateLocked, m2.State())
}

func TestLoginSuccessUnlocks(t *testing.T) {
	m, rec := protectedMachine(t, "hunter22hunter22")

	require.NoError(t, m.Login("hunter22hunter22"))
	assert.Equal(t, StateUnlocked, m.State())

	got := rec.waitFor(t, 1)
	assert.Equal(t, StateLocked, got[0].From)
	assert.Equal(t, StateUnlocked, got[0].To)
	assert.Equal(t, CauseLoginSuccess, got[0].Cause)
}

func TestLoginFailureStaysLockedAndIsObserved(t *testing.T) {
	m, rec := protectedMachine(t, "hunter22hunter22")

	require.ErrorIs(t, m.Login("wrong"), ErrInvalidCredential)
	assert.Equal(t, StateLocked, m.State())

	got := rec.waitFor(t, 1)
	assert.Equal(t, StateLocked, got[0].To)
	assert.Equal(t, CauseLoginFailure, got[0].Cause)
}

func TestLoginWhileUnlockedIsNoOp(t *testing.T) {
	m, rec := protectedMachine(t, "hunter22hunter22")
	require.NoError(t, m.Login("hunter22hunter22"))

	// No verification runs, no transition fires.
	require.NoError(t, m.Login("anything at all"))
	assert.Len(t, rec.waitFor(t, 1), 1)
}

func TestLockRequestLocksAndIsIdempotent(t *testing.T) {
	m, rec := protectedMachine(t, "hunter22hunter22")
	require.NoError(t, m.Login("hunter22hunter22"))
	rec.waitFor(t, 1)

	m.Requests() <- LockRequest{Cause: CauseIdleTimeout, Source: "idle_monitor"}
	got := rec.waitFor(t, 2)
	assert.Equal(t, StateLocked, m.State())
	assert.Equal(t, CauseIdleTimeout, got[1].Cause)
	assert.Equal(t, "idle_monitor", got[1].Source)

	// Already locked: a further request is absorbed silently.
	m.Requests() <- LockRequest{Cause: CauseOSEvent, Source: "SCREEN_LOCKED"}
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.all(), 2)
}

func TestManualLogout(t *testing.T) {
	m, rec := protectedMachine(t, "hunter22hunter22")
	require.NoError(t, m.Login("hunter22hunter22"))
	rec.waitFor(t, 1)

	m.Logout()
	got := rec.waitFor(t, 2)
	assert.Equal(t, StateLocked, m.State())
	assert.Equal(t, CauseManualLogout, got[1].Cause)
}

func TestLockoutCauseObserved(t *testing.T) {
	m, rec := protectedMachine(t, "hunter22hunter22")

	for i := 0; i < 5; i++ {
		require.ErrorIs(t, m.Login("wrong"), ErrInvalidCredential)
	}
	require.ErrorIs(t, m.Login("hunter22hunter22"), ErrLockedOut)

	got := rec.waitFor(t, 6)
	assert.Equal(t, CauseLockout, got[5].Cause)
	assert.Equal(t, StateLocked, m.State())
}

func TestRecoveryResetUnlocks(t *testing.T) {
	st := newMemStore()
	auth := testAuthManager(st, newFakeClock())
	key, err := auth.SetPassword("forgotten-password")
	require.NoError(t, err)

	m, err := NewSessionMachine(auth)
	require.NoError(t, err)
	m.Start()
	t.Cleanup(m.Stop)

	fresh, err := m.LoginWithRecoveryReset(key, "brand-new-password")
	require.NoError(t, err)
	assert.NotEmpty(t, fresh)
	assert.Equal(t, StateUnlocked, m.State())
}

// A lock request emitted while a login attempt is in flight must apply
// after the attempt resolves, never before and never dropped. The login
// runs at the production bcrypt cost so it is reliably still inside
// verification when the request arrives.
func TestLockRequestDuringLoginAppliesAfterAttempt(t *testing.T) {
	st := newMemStore()
	auth := NewAuthManager(st)
	_, err := auth.SetPassword("hunter22hunter22")
	require.NoError(t, err)

	m, err := NewSessionMachine(auth)
	require.NoError(t, err)
	rec := &transitionRecorder{}
	m.Subscribe(rec.record)
	m.Start()
	t.Cleanup(m.Stop)

	loginDone := make(chan error, 1)
	go func() {
		loginDone <- m.Login("hunter22hunter22")
	}()

	// Give the login goroutine time to take the transition mutex and
	// enter bcrypt (hundreds of milliseconds at cost 12).
	time.Sleep(20 * time.Millisecond)
	m.Requests() <- LockRequest{Cause: CauseOSEvent, Source: "SCREEN_LOCKED"}

	require.NoError(t, <-loginDone)

	// The login resolved as a success, then the pending request locked.
	got := rec.waitFor(t, 2)
	assert.Equal(t, CauseLoginSuccess, got[0].Cause)
	assert.Equal(t, StateUnlocked, got[0].To)
	assert.Equal(t, CauseOSEvent, got[1].Cause)
	assert.Equal(t, StateLocked, got[1].To)
	assert.Equal(t, StateLocked, m.State())
}
