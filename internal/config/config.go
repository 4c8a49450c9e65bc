// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

// Package config loads and manages the wallet-app configuration.
//
// Configuration lives in TOML at ~/.wallet-app/config.toml. Missing files
// and missing keys fall back to defaults; invalid values are clamped into
// range rather than rejected, so a hand-edited file can never leave the
// application without a working security posture.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/kzaklikiewicz/wallet-app/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete wallet-app configuration.
type Config struct {
	Version string `toml:"version"`

	// Database configuration
	Database DatabaseConfig `toml:"database"`

	// Security configuration
	Security SecurityConfig `toml:"security"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	// Path is the database file (empty = ~/.wallet-app/wallet.db).
	Path string `toml:"path"`
}

// SecurityConfig holds the authentication subsystem settings. The
// persisted auth_settings row is authoritative for the per-user toggles;
// these values seed it and bound the policy knobs.
type SecurityConfig struct {
	// AutoLockEnabled enables idle-based locking.
	AutoLockEnabled bool `toml:"auto_lock_enabled"`
	// AutoLockTimeoutSecs is the idle threshold in seconds.
	// Clamped to [60, 86400].
	AutoLockTimeoutSecs int `toml:"auto_lock_timeout_secs"`
	// OSLockIntegration locks when the host session locks, sleeps,
	// switches user, drops a remote session, or logs off.
	OSLockIntegration bool `toml:"os_lock_integration"`

	// MaxLoginAttempts is the consecutive-failure threshold before
	// lockout. Clamped to [3, 10].
	MaxLoginAttempts int `toml:"max_login_attempts"`
	// LockoutDurationMinutes is the lockout window length.
	// Clamped to [5, 120].
	LockoutDurationMinutes int `toml:"lockout_duration_minutes"`

	// AuditEnabled enables the append-only audit log.
	AuditEnabled bool `toml:"audit_enabled"`
	// AuditLogPath overrides the audit log location
	// (empty = ~/.wallet-app/audit.log).
	AuditLogPath string `toml:"audit_log_path"`
}

// =============================================================================
// DEFAULTS AND VALIDATION
// =============================================================================

const (
	configDirName  = ".wallet-app"
	configFileName = "config.toml"

	minAutoLockTimeoutSecs = 60
	maxAutoLockTimeoutSecs = 86400

	minLoginAttempts = 3
	maxLoginAttempts = 10

	minLockoutMinutes = 5
	maxLockoutMinutes = 120
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Security: SecurityConfig{
			AutoLockEnabled:        true,
			AutoLockTimeoutSecs:    1800,
			OSLockIntegration:      true,
			MaxLoginAttempts:       5,
			LockoutDurationMinutes: 15,
			AuditEnabled:           true,
		},
	}
}

// Dir returns the configuration directory (~/.wallet-app).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// clamp pins v into [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Validate clamps out-of-range values in place.
func (c *Config) Validate() {
	s := &c.Security
	if s.AutoLockTimeoutSecs == 0 {
		s.AutoLockTimeoutSecs = DefaultConfig().Security.AutoLockTimeoutSecs
	}
	s.AutoLockTimeoutSecs = clamp(s.AutoLockTimeoutSecs, minAutoLockTimeoutSecs, maxAutoLockTimeoutSecs)

	if s.MaxLoginAttempts == 0 {
		s.MaxLoginAttempts = DefaultConfig().Security.MaxLoginAttempts
	}
	s.MaxLoginAttempts = clamp(s.MaxLoginAttempts, minLoginAttempts, maxLoginAttempts)

	if s.LockoutDurationMinutes == 0 {
		s.LockoutDurationMinutes = DefaultConfig().Security.LockoutDurationMinutes
	}
	s.LockoutDurationMinutes = clamp(s.LockoutDurationMinutes, minLockoutMinutes, maxLockoutMinutes)
}

// DatabasePath resolves the database location, applying the default.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "wallet.db"), nil
}

// AuditPath resolves the audit log location, applying the default.
func (c *Config) AuditPath() (string, error) {
	if c.Security.AuditLogPath != "" {
		return c.Security.AuditLogPath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audit.log"), nil
}

// =============================================================================
// LOAD AND SAVE
// =============================================================================

// LoadFrom reads configuration from path. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Validate()
	return cfg, nil
}

// Load reads the configuration from the default location.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// SaveTo writes the configuration atomically to path.
func (c *Config) SaveTo(path string) error {
	buf, err := tomlMarshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf, 0600)
}

// Save writes the configuration to the default location.
func (c *Config) Save() error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

func tomlMarshal(c *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
