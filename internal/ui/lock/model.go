// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

// Package lock renders the lock screen: first-run setup, login, recovery
// reset, and the one-time recovery key display. While the session is
// LOCKED this is the only view the application presents; no wallet data
// is rendered behind it.
package lock

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kzaklikiewicz/wallet-app/internal/security"
)

// =============================================================================
// MESSAGES
// =============================================================================

// TransitionMsg is forwarded from the session machine's observer into the
// bubbletea loop.
type TransitionMsg struct {
	Transition security.Transition
}

// loginResultMsg reports an asynchronous login attempt.
type loginResultMsg struct {
	err error
}

// setupResultMsg reports an asynchronous setup or recovery reset.
type setupResultMsg struct {
	recoveryKey string
	err         error
}

// =============================================================================
// VIEW MODES
// =============================================================================

type mode int

const (
	modeLogin mode = iota
	modeSetup
	modeRecover
	modeShowRecoveryKey
	modeUnlocked
)

// =============================================================================
// STYLES
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 3)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	keyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220")).
			Background(lipgloss.Color("236")).
			Padding(0, 2)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the bubbletea model for the lock screen.
type Model struct {
	machine *security.SessionMachine
	auth    *security.AuthManager
	idle    *security.IdleMonitor

	mode mode

	password  textinput.Model
	confirm   textinput.Model
	recovery  textinput.Model
	focusLine int

	// recoveryKey is held only while modeShowRecoveryKey is on screen,
	// then discarded.
	recoveryKey string

	errText  string
	strength security.PasswordStrength
	busy     bool

	width  int
	height int
}

// New builds the lock screen over an already-constructed session machine.
func New(machine *security.SessionMachine, auth *security.AuthManager, idle *security.IdleMonitor) (Model, error) {
	password := textinput.New()
	password.Placeholder = "master password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 128
	password.Focus()

	confirm := textinput.New()
	confirm.Placeholder = "repeat password"
	confirm.EchoMode = textinput.EchoPassword
	confirm.CharLimit = 128

	recovery := textinput.New()
	recovery.Placeholder = "XXXX-XXXX-XXXX-XXXX"
	recovery.CharLimit = 32

	m := Model{
		machine:  machine,
		auth:     auth,
		idle:     idle,
		password: password,
		confirm:  confirm,
		recovery: recovery,
	}

	protected, err := auth.Protected()
	if err != nil {
		return Model{}, err
	}
	switch {
	case !protected:
		m.mode = modeSetup
	case machine.State() == security.StateUnlocked:
		m.mode = modeUnlocked
	default:
		m.mode = modeLogin
	}
	return m, nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		// Every keystroke is an activity signal.
		m.idle.Touch()
		return m.updateKey(msg)

	case tea.MouseMsg:
		m.idle.Touch()
		return m, nil

	case TransitionMsg:
		return m.updateTransition(msg.Transition)

	case loginResultMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = loginErrorText(msg.err)
			m.password.SetValue("")
			return m, nil
		}
		m.errText = ""
		m.password.SetValue("")
		m.mode = modeUnlocked
		return m, nil

	case setupResultMsg:
		m.busy = false
		if msg.err != nil {
			m.errText = loginErrorText(msg.err)
			return m, nil
		}
		m.errText = ""
		m.recoveryKey = msg.recoveryKey
		m.clearInputs()
		m.mode = modeShowRecoveryKey
		return m, nil
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	}

	switch m.mode {
	case modeLogin:
		return m.updateLogin(msg)
	case modeSetup:
		return m.updateSetup(msg)
	case modeRecover:
		return m.updateRecover(msg)
	case modeShowRecoveryKey:
		if msg.String() == "enter" {
			m.recoveryKey = ""
			m.mode = modeUnlocked
		}
		return m, nil
	case modeUnlocked:
		switch msg.String() {
		case "l", "q":
			m.machine.Logout()
			return m, nil
		}
	}
	return m, nil
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		password := m.password.Value()
		m.busy = true
		return m, func() tea.Msg {
			return loginResultMsg{err: m.machine.Login(password)}
		}
	case "ctrl+r":
		m.errText = ""
		m.mode = modeRecover
		m.recovery.Focus()
		m.password.Blur()
		m.focusLine = 0
		return m, nil
	}
	var cmd tea.Cmd
	m.password, cmd = m.password.Update(msg)
	return m, cmd
}

func (m Model) updateSetup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "down", "up":
		m.focusLine = 1 - m.focusLine
		if m.focusLine == 0 {
			m.password.Focus()
			m.confirm.Blur()
		} else {
			m.password.Blur()
			m.confirm.Focus()
		}
		return m, nil
	case "enter":
		password := m.password.Value()
		if password != m.confirm.Value() {
			m.errText = "passwords do not match"
			return m, nil
		}
		m.busy = true
		return m, func() tea.Msg {
			key, err := m.auth.SetPassword(password)
			if err == nil {
				// First unlock happens through the machine so the
				// transition is observed and audited.
				err = m.machine.Login(password)
			}
			return setupResultMsg{recoveryKey: key, err: err}
		}
	}
	var cmd tea.Cmd
	if m.focusLine == 0 {
		m.password, cmd = m.password.Update(msg)
		m.strength = security.CheckPasswordStrength(m.password.Value())
	} else {
		m.confirm, cmd = m.confirm.Update(msg)
	}
	return m, cmd
}

func (m Model) updateRecover(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.errText = ""
		m.mode = modeLogin
		m.recovery.Blur()
		m.password.Focus()
		m.focusLine = 0
		return m, nil
	case "tab", "shift+tab", "down", "up":
		m.focusLine = (m.focusLine + 1) % 3
		m.recovery.Blur()
		m.password.Blur()
		m.confirm.Blur()
		switch m.focusLine {
		case 0:
			m.recovery.Focus()
		case 1:
			m.password.Focus()
		case 2:
			m.confirm.Focus()
		}
		return m, nil
	case "enter":
		if m.password.Value() != m.confirm.Value() {
			m.errText = "passwords do not match"
			return m, nil
		}
		candidate := m.recovery.Value()
		newPassword := m.password.Value()
		m.busy = true
		return m, func() tea.Msg {
			key, err := m.machine.LoginWithRecoveryReset(candidate, newPassword)
			return setupResultMsg{recoveryKey: key, err: err}
		}
	}
	var cmd tea.Cmd
	switch m.focusLine {
	case 0:
		m.recovery, cmd = m.recovery.Update(msg)
	case 1:
		m.password, cmd = m.password.Update(msg)
		m.strength = security.CheckPasswordStrength(m.password.Value())
	case 2:
		m.confirm, cmd = m.confirm.Update(msg)
	}
	return m, cmd
}

func (m Model) updateTransition(t security.Transition) (tea.Model, tea.Cmd) {
	if t.To == security.StateLocked && m.mode == modeUnlocked {
		m.mode = modeLogin
		m.clearInputs()
		m.password.Focus()
		m.focusLine = 0
		switch t.Cause {
		case security.CauseIdleTimeout:
			m.errText = "locked after inactivity"
		case security.CauseOSEvent:
			m.errText = "locked by the system (" + t.Source + ")"
		default:
			m.errText = ""
		}
	}
	return m, nil
}

func (m *Model) clearInputs() {
	m.password.SetValue("")
	m.confirm.SetValue("")
	m.recovery.SetValue("")
	m.strength = security.PasswordStrength{}
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	var body string
	switch m.mode {
	case modeSetup:
		body = m.viewSetup()
	case modeLogin:
		body = m.viewLogin()
	case modeRecover:
		body = m.viewRecover()
	case modeShowRecoveryKey:
		body = m.viewRecoveryKey()
	case modeUnlocked:
		body = m.viewUnlocked()
	}

	box := boxStyle.Render(body)
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}
	return box
}

func (m Model) viewLogin() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("🔒 Wallet locked"))
	sb.WriteString("\n\n")
	sb.WriteString(m.password.View())
	sb.WriteString("\n\n")
	if m.errText != "" {
		sb.WriteString(errorStyle.Render(m.errText))
		sb.WriteString("\n")
	}
	if m.busy {
		sb.WriteString(hintStyle.Render("checking..."))
	} else {
		sb.WriteString(hintStyle.Render("enter to unlock · ctrl+r to use a recovery key"))
	}
	return sb.String()
}

func (m Model) viewSetup() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Set a master password"))
	sb.WriteString("\n\n")
	sb.WriteString(m.password.View())
	sb.WriteString("\n")
	sb.WriteString(m.confirm.View())
	sb.WriteString("\n\n")
	if m.password.Value() != "" {
		sb.WriteString(fmt.Sprintf("strength: %s %s\n", m.strength.Bar(), m.strength.Label))
	}
	if m.errText != "" {
		sb.WriteString(errorStyle.Render(m.errText))
		sb.WriteString("\n")
	}
	sb.WriteString(hintStyle.Render("at least 8 characters · tab to switch · enter to confirm"))
	return sb.String()
}

func (m Model) viewRecover() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Reset with recovery key"))
	sb.WriteString("\n\n")
	sb.WriteString(m.recovery.View())
	sb.WriteString("\n")
	sb.WriteString(m.password.View())
	sb.WriteString("\n")
	sb.WriteString(m.confirm.View())
	sb.WriteString("\n\n")
	if m.errText != "" {
		sb.WriteString(errorStyle.Render(m.errText))
		sb.WriteString("\n")
	}
	sb.WriteString(hintStyle.Render("tab to switch fields · enter to reset · esc to go back"))
	return sb.String()
}

func (m Model) viewRecoveryKey() string {
	var sb strings.Builder
	sb.WriteString(warnStyle.Render("⚠ Your recovery key (shown only once)"))
	sb.WriteString("\n\n")
	sb.WriteString(keyStyle.Render(m.recoveryKey))
	sb.WriteString("\n\n")
	sb.WriteString("Write it down and store it somewhere safe.\n")
	sb.WriteString("It is the only way back in if you forget the password.\n\n")
	sb.WriteString(hintStyle.Render("enter once you have saved it"))
	return sb.String()
}

func (m Model) viewUnlocked() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("🔓 Wallet unlocked"))
	sb.WriteString("\n\n")
	sb.WriteString("Session is active.\n\n")
	sb.WriteString(hintStyle.Render("l to lock · ctrl+c to quit"))
	return sb.String()
}

// loginErrorText maps subsystem errors to display strings without leaking
// which credential failed.
func loginErrorText(err error) string {
	var locked *security.LockedOutError
	switch {
	case errors.As(err, &locked):
		return fmt.Sprintf("too many attempts; try again in %s",
			locked.Remaining.Round(time.Second))
	case errors.Is(err, security.ErrInvalidCredential):
		return "wrong credential"
	case errors.Is(err, security.ErrWeakPassword):
		return "password too weak (minimum 8 characters)"
	default:
		return err.Error()
	}
}
