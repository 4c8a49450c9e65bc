// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package store

// The auth_settings table holds exactly one row (id = 1). All columns that
// carry secrets hold bcrypt digests only; plaintext never reaches this
// package.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS auth_settings (
	id                          INTEGER PRIMARY KEY CHECK (id = 1),
	password_hash               TEXT,
	recovery_key_hash           TEXT,
	failed_attempts             INTEGER NOT NULL DEFAULT 0,
	lockout_until               TEXT,
	auto_lock_enabled           INTEGER NOT NULL DEFAULT 1,
	auto_lock_timeout_seconds   INTEGER NOT NULL DEFAULT 1800,
	os_lock_integration_enabled INTEGER NOT NULL DEFAULT 1,
	last_success_at             TEXT,
	updated_at                  TEXT NOT NULL
);
`
