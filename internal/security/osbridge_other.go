// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

//go:build !windows

package security

// NewHostEventSource reports that this host has no session-notification
// mechanism. The caller runs without an OS bridge: idle auto-lock and
// manual locking still apply.
func NewHostEventSource() (SessionEventSource, error) {
	return nil, ErrNoHostIntegration
}
