// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.True(t, cfg.Security.AutoLockEnabled)
	assert.Equal(t, 1800, cfg.Security.AutoLockTimeoutSecs)
	assert.Equal(t, 5, cfg.Security.MaxLoginAttempts)
	assert.Equal(t, 15, cfg.Security.LockoutDurationMinutes)
	assert.True(t, cfg.Security.OSLockIntegration)
	assert.True(t, cfg.Security.AuditEnabled)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig()
	cfg.Security.AutoLockTimeoutSecs = 300
	cfg.Security.AutoLockEnabled = false
	cfg.Database.Path = "/tmp/custom.db"
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 300, loaded.Security.AutoLockTimeoutSecs)
	assert.False(t, loaded.Security.AutoLockEnabled)
	assert.Equal(t, "/tmp/custom.db", loaded.Database.Path)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(
		"[security]\nauto_lock_timeout_secs = 600\n"), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.Security.AutoLockTimeoutSecs)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5, cfg.Security.MaxLoginAttempts)
}

func TestValidateClampsOutOfRangeValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.AutoLockTimeoutSecs = 5
	cfg.Security.MaxLoginAttempts = 100
	cfg.Security.LockoutDurationMinutes = 1
	cfg.Validate()

	assert.Equal(t, minAutoLockTimeoutSecs, cfg.Security.AutoLockTimeoutSecs)
	assert.Equal(t, maxLoginAttempts, cfg.Security.MaxLoginAttempts)
	assert.Equal(t, minLockoutMinutes, cfg.Security.LockoutDurationMinutes)
}

func TestMalformedFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [valid toml"), 0600))

	_, err := LoadFrom(path)
	require.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, DefaultConfig().SaveTo(path))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Stop()

	updated := DefaultConfig()
	updated.Security.AutoLockTimeoutSecs = 120
	require.NoError(t, updated.SaveTo(path))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 120, cfg.Security.AutoLockTimeoutSecs)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reloaded")
	}
}
