// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// AUDIT EVENTS
// =============================================================================

// DefaultAuditMaxFileSize is the max audit log size before rotation (5MB).
const DefaultAuditMaxFileSize int64 = 5 * 1024 * 1024

// AuditEvent is a single append-only audit record. Events carry no secret
// material: no passwords, no recovery keys, no digests.
type AuditEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Success   bool              `json:"success"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Audit event types emitted by this package.
const (
	AuditEventLoginSuccess    = "AUTH_LOGIN_SUCCESS"
	AuditEventLoginFailure    = "AUTH_LOGIN_FAILURE"
	AuditEventLockout         = "AUTH_LOCKOUT"
	AuditEventLockoutRejected = "AUTH_ATTEMPT_BLOCKED"
	AuditEventPasswordSet     = "AUTH_PASSWORD_SET"
	AuditEventPasswordChanged = "AUTH_PASSWORD_CHANGED"
	AuditEventRecoveryIssued  = "AUTH_RECOVERY_ISSUED"
	AuditEventRecoveryReset   = "AUTH_RECOVERY_RESET"
	AuditEventProtectionOff   = "AUTH_PROTECTION_DISABLED"
	AuditEventSessionLocked   = "SESSION_LOCKED"
	AuditEventSessionUnlocked = "SESSION_UNLOCKED"
)

// =============================================================================
// AUDIT LOGGER
// =============================================================================

// AuditLogger appends JSON-line events to a local log file. A nil
// *AuditLogger is valid and drops events, so callers never need nil
// checks at call sites.
type AuditLogger struct {
	path        string
	maxFileSize int64

	mu   sync.Mutex
	file *os.File
}

// AuditOption is a functional option for configuring AuditLogger.
type AuditOption func(*AuditLogger)

// WithAuditMaxFileSize overrides the rotation threshold.
func WithAuditMaxFileSize(n int64) AuditOption {
	return func(a *AuditLogger) {
		if n > 0 {
			a.maxFileSize = n
		}
	}
}

// NewAuditLogger opens (creating if needed) the append-only audit log at
// path.
func NewAuditLogger(path string, opts ...AuditOption) (*AuditLogger, error) {
	a := &AuditLogger{
		path:        path,
		maxFileSize: DefaultAuditMaxFileSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	a.file = f
	return a, nil
}

// Log appends an event. Audit failures are reported to the process log but
// never fail the calling operation.
func (a *AuditLogger) Log(eventType string, success bool, metadata map[string]string) {
	if a == nil {
		return
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Success:   success,
		Metadata:  metadata,
	}

	line, err := json.Marshal(event)
	if err != nil {
		log.Printf("AUDIT: failed to marshal event %s: %v", eventType, err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.rotateLocked()

	if _, err := a.file.Write(append(line, '\n')); err != nil {
		log.Printf("AUDIT: failed to write event %s: %v", eventType, err)
		return
	}
	// RELIABILITY: audit records for lockout decisions must hit disk with
	// the decision itself.
	if err := a.file.Sync(); err != nil {
		log.Printf("AUDIT: failed to sync audit log: %v", err)
	}
}

// rotateLocked moves the current file aside once it exceeds the size
// threshold. One previous generation is kept.
func (a *AuditLogger) rotateLocked() {
	info, err := a.file.Stat()
	if err != nil || info.Size() < a.maxFileSize {
		return
	}

	if err := a.file.Close(); err != nil {
		log.Printf("AUDIT: failed to close log for rotation: %v", err)
	}
	if err := os.Rename(a.path, a.path+".1"); err != nil {
		log.Printf("AUDIT: failed to rotate log: %v", err)
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		log.Printf("AUDIT: failed to reopen log after rotation: %v", err)
		return
	}
	a.file = f
}

// Close closes the underlying file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
