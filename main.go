// wallet-app - local portfolio wallet with a credential-gated session.
//
// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/kzaklikiewicz/wallet-app/internal/config"
	"github.com/kzaklikiewicz/wallet-app/internal/security"
	"github.com/kzaklikiewicz/wallet-app/internal/store"
	"github.com/kzaklikiewicz/wallet-app/internal/ui/lock"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default ~/.wallet-app/config.toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("wallet-app %s (%s)\n", Version, GitCommit)
		return
	}

	path := *configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			fatal(err)
		}
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		fatal(err)
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		fatal(err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		fatal(err)
	}
	defer st.Close()

	var audit *security.AuditLogger
	if cfg.Security.AuditEnabled {
		auditPath, err := cfg.AuditPath()
		if err != nil {
			fatal(err)
		}
		if audit, err = security.NewAuditLogger(auditPath); err != nil {
			fatal(err)
		}
		defer audit.Close()
	}

	lockout := security.NewLockoutPolicy(st,
		security.WithMaxAttempts(cfg.Security.MaxLoginAttempts),
		security.WithLockoutDuration(time.Duration(cfg.Security.LockoutDurationMinutes)*time.Minute),
		security.WithLockoutAudit(audit),
	)
	auth := security.NewAuthManager(st,
		security.WithAudit(audit),
		security.WithLockoutPolicy(lockout),
	)

	if flag.Arg(0) == "recover" {
		if err := runRecover(auth); err != nil {
			fatal(err)
		}
		return
	}

	// Config is the editable surface for the lock toggles; push it into
	// the persisted row before anything reads it.
	if err := auth.UpdateAutoLock(cfg.Security.AutoLockEnabled, cfg.Security.AutoLockTimeoutSecs); err != nil {
		fatal(err)
	}
	if err := auth.UpdateOSLockIntegration(cfg.Security.OSLockIntegration); err != nil {
		fatal(err)
	}

	// The machine computes its initial state here; a corrupt store fails
	// construction and nothing ever unlocks.
	machine, err := security.NewSessionMachine(auth, security.WithSessionAudit(audit))
	if err != nil {
		if errors.Is(err, store.ErrCorruptStore) {
			fmt.Fprintln(os.Stderr, "The authentication settings are corrupted.")
			fmt.Fprintln(os.Stderr, "Restore the database from a backup; the wallet will not unlock.")
			os.Exit(2)
		}
		fatal(err)
	}
	machine.Start()
	defer machine.Stop()

	idle := security.NewIdleMonitor(machine.Requests(),
		security.WithIdleEnabled(cfg.Security.AutoLockEnabled),
		security.WithIdleTimeout(time.Duration(cfg.Security.AutoLockTimeoutSecs)*time.Second),
	)
	idle.Start()
	defer idle.Stop()

	var bridge *security.OSBridge
	if source, err := security.NewHostEventSource(); err == nil {
		bridge = security.NewOSBridge(source, machine.Requests(), cfg.Security.OSLockIntegration)
		if err := bridge.Start(); err != nil {
			log.Printf("OS_BRIDGE: disabled: %v", err)
			bridge = nil
		} else {
			defer bridge.Stop()
		}
	} else if !errors.Is(err, security.ErrNoHostIntegration) {
		log.Printf("OS_BRIDGE: disabled: %v", err)
	}

	// Live-reload the security knobs that can change without a restart.
	watcher, err := config.NewWatcher(path, func(next *config.Config) {
		idle.SetEnabled(next.Security.AutoLockEnabled)
		idle.SetTimeout(time.Duration(next.Security.AutoLockTimeoutSecs) * time.Second)
		if bridge != nil {
			bridge.SetEnabled(next.Security.OSLockIntegration)
		}
		if err := auth.UpdateAutoLock(next.Security.AutoLockEnabled, next.Security.AutoLockTimeoutSecs); err != nil {
			log.Printf("CONFIG: failed to persist auto-lock settings: %v", err)
		}
		if err := auth.UpdateOSLockIntegration(next.Security.OSLockIntegration); err != nil {
			log.Printf("CONFIG: failed to persist OS-lock setting: %v", err)
		}
	})
	if err != nil {
		log.Printf("CONFIG: live reload disabled: %v", err)
	} else {
		defer watcher.Stop()
	}

	model, err := lock.New(machine, auth, idle)
	if err != nil {
		fatal(err)
	}
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	machine.Subscribe(func(t security.Transition) {
		p.Send(lock.TransitionMsg{Transition: t})
	})

	if _, err := p.Run(); err != nil {
		fatal(err)
	}
}

// runRecover is the headless recovery-reset path for when the TUI cannot
// start (for example over a bare SSH session).
func runRecover(auth *security.AuthManager) error {
	protected, err := auth.Protected()
	if err != nil {
		return err
	}
	if !protected {
		return errors.New("no master password is set; nothing to recover")
	}

	fmt.Print("Recovery key: ")
	keyBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Print("New master password: ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Print("Repeat new password: ")
	repeatBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return err
	}
	if string(passBytes) != string(repeatBytes) {
		return errors.New("passwords do not match")
	}

	freshKey, err := auth.ResetWithRecoveryKey(string(keyBytes), string(passBytes))
	if err != nil {
		var locked *security.LockedOutError
		if errors.As(err, &locked) {
			return fmt.Errorf("locked out; try again in %s", locked.Remaining.Round(time.Second))
		}
		return err
	}

	fmt.Println("\nPassword reset. Your NEW recovery key (shown only once):")
	fmt.Printf("\n    %s\n\n", freshKey)
	fmt.Println("Write it down; the old key no longer works.")
	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
