// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// IDLE MONITOR
// =============================================================================

// DefaultIdleCheckInterval is the reference cadence for idle checks. The
// cadence is a tuning parameter; correctness lives in the comparison
// against the configured timeout, not in when the check happens to run.
const DefaultIdleCheckInterval = 60 * time.Second

// IdleMonitor watches a stream of payload-less user-activity signals and
// emits a lock request once no activity has been seen for the configured
// timeout. It runs independently of the UI event loop and produces the
// same LockRequest type as every other lock source.
type IdleMonitor struct {
	requests chan<- LockRequest

	mu           sync.Mutex
	lastActivity time.Time
	enabled      bool
	timeout      time.Duration
	// armed is cleared after emitting so one idle period produces exactly
	// one lock request; any activity re-arms it.
	armed bool

	interval time.Duration
	clock    func() time.Time

	// limiter coalesces activity-signal bursts (pointer movement arrives
	// at display refresh rate). Dropping a coalesced signal leaves
	// lastActivity at most 250ms stale, which is noise against a
	// seconds-scale timeout.
	limiter *rate.Limiter

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// IdleOption is a functional option for configuring IdleMonitor.
type IdleOption func(*IdleMonitor)

// WithIdleTimeout sets the idle threshold.
func WithIdleTimeout(d time.Duration) IdleOption {
	return func(m *IdleMonitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithIdleCheckInterval overrides the check cadence (tests use millisecond
// cadences).
func WithIdleCheckInterval(d time.Duration) IdleOption {
	return func(m *IdleMonitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithIdleEnabled sets the initial enabled state.
func WithIdleEnabled(enabled bool) IdleOption {
	return func(m *IdleMonitor) {
		m.enabled = enabled
	}
}

// WithIdleClock injects a clock for tests.
func WithIdleClock(clock func() time.Time) IdleOption {
	return func(m *IdleMonitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewIdleMonitor creates a monitor emitting into the given lock-request
// channel.
func NewIdleMonitor(requests chan<- LockRequest, opts ...IdleOption) *IdleMonitor {
	m := &IdleMonitor{
		requests: requests,
		enabled:  true,
		timeout:  30 * time.Minute,
		interval: DefaultIdleCheckInterval,
		clock:    time.Now,
		limiter:  rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastActivity = m.clock()
	m.armed = true
	return m
}

// Touch records a user-activity signal. Every signal resets the idle
// timer; bursts are coalesced by the limiter within its 250ms window.
func (m *IdleMonitor) Touch() {
	if !m.limiter.Allow() {
		return
	}
	m.mu.Lock()
	m.lastActivity = m.clock()
	m.armed = true
	m.mu.Unlock()
}

// SetEnabled toggles auto-lock emission. Disabling does not clear the
// last-activity timestamp.
func (m *IdleMonitor) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
}

// SetTimeout updates the idle threshold.
func (m *IdleMonitor) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

// LastActivity returns the most recent recorded activity time.
func (m *IdleMonitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Start launches the periodic check loop.
func (m *IdleMonitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.check()
			case <-m.done:
				return
			}
		}
	}()
}

// Stop halts the check loop.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

// check emits at most one lock request per idle period.
func (m *IdleMonitor) check() {
	m.mu.Lock()
	now := m.clock()
	shouldLock := m.enabled && m.armed && now.Sub(m.lastActivity) >= m.timeout
	if shouldLock {
		m.armed = false
	}
	m.mu.Unlock()

	if !shouldLock {
		return
	}

	select {
	case m.requests <- LockRequest{Cause: CauseIdleTimeout, Source: "idle_monitor"}:
	case <-m.done:
	}
}
