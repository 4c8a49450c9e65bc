// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"errors"
	"sync"
	"sync/atomic"
)

// =============================================================================
// HOST SESSION EVENTS
// =============================================================================

// SessionEvent is a host-OS notification that the desktop session became
// inaccessible.
type SessionEvent int

const (
	// EventScreenLocked fires when the host locks the screen.
	EventScreenLocked SessionEvent = iota
	// EventSleepOrHibernate fires when the host suspends or hibernates.
	EventSleepOrHibernate
	// EventUserSwitched fires when the console switches to another user.
	EventUserSwitched
	// EventRemoteDisconnected fires when a remote-desktop session drops.
	EventRemoteDisconnected
	// EventLoggedOff fires when the user logs off.
	EventLoggedOff
)

// String returns a string representation of the SessionEvent.
func (e SessionEvent) String() string {
	switch e {
	case EventScreenLocked:
		return "SCREEN_LOCKED"
	case EventSleepOrHibernate:
		return "SLEEP_OR_HIBERNATE"
	case EventUserSwitched:
		return "USER_SWITCHED"
	case EventRemoteDisconnected:
		return "REMOTE_SESSION_DISCONNECTED"
	case EventLoggedOff:
		return "LOGGED_OFF"
	default:
		return "UNKNOWN"
	}
}

// ErrNoHostIntegration is returned on hosts without a session-notification
// mechanism. That is a supported configuration, not an error condition:
// the subsystem degrades to idle monitoring and manual locking.
var ErrNoHostIntegration = errors.New("host session notifications not available on this platform")

// SessionEventSource abstracts the host-specific notification mechanism.
type SessionEventSource interface {
	// Start begins delivering events on Events.
	Start() error
	// Events is the stream of host session events.
	Events() <-chan SessionEvent
	// Stop halts delivery and releases host resources.
	Stop()
}

// =============================================================================
// OS BRIDGE
// =============================================================================

// OSBridge translates host session events into lock requests. It never
// performs credential work itself; each event becomes one cheap,
// unconditional LockRequest sent the moment the event arrives, with no
// debounce.
type OSBridge struct {
	source   SessionEventSource
	requests chan<- LockRequest

	// enabled mirrors the os_lock_integration_enabled setting; atomic so
	// the forward loop never blocks on configuration updates.
	enabled atomic.Bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewOSBridge wires an event source to the lock-request channel.
func NewOSBridge(source SessionEventSource, requests chan<- LockRequest, enabled bool) *OSBridge {
	b := &OSBridge{
		source:   source,
		requests: requests,
		done:     make(chan struct{}),
	}
	b.enabled.Store(enabled)
	return b
}

// SetEnabled toggles event forwarding without restarting the source.
func (b *OSBridge) SetEnabled(enabled bool) {
	b.enabled.Store(enabled)
}

// Start starts the underlying source and the forwarding loop.
func (b *OSBridge) Start() error {
	if err := b.source.Start(); err != nil {
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case event, ok := <-b.source.Events():
				if !ok {
					return
				}
				if !b.enabled.Load() {
					continue
				}
				select {
				case b.requests <- LockRequest{Cause: CauseOSEvent, Source: event.String()}:
				case <-b.done:
					return
				}
			case <-b.done:
				return
			}
		}
	}()
	return nil
}

// Stop halts forwarding and the underlying source.
func (b *OSBridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
	b.source.Stop()
	b.wg.Wait()
}
