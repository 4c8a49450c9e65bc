// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

//go:build windows

package security

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Windows delivers session-change notifications (WTS) and power broadcasts
// as window messages, so the source runs a hidden top-level window on a
// dedicated OS thread. A message-only window would miss WM_POWERBROADCAST,
// which is broadcast to top-level windows only.

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	wtsapi32 = windows.NewLazySystemDLL("wtsapi32.dll")

	procRegisterClassExW = user32.NewProc("RegisterClassExW")
	procCreateWindowExW  = user32.NewProc("CreateWindowExW")
	procDefWindowProcW   = user32.NewProc("DefWindowProcW")
	procDestroyWindow    = user32.NewProc("DestroyWindow")
	procGetMessageW      = user32.NewProc("GetMessageW")
	procDispatchMessageW = user32.NewProc("DispatchMessageW")
	procPostMessageW     = user32.NewProc("PostMessageW")
	procPostQuitMessage  = user32.NewProc("PostQuitMessage")

	procWTSRegisterSessionNotification   = wtsapi32.NewProc("WTSRegisterSessionNotification")
	procWTSUnRegisterSessionNotification = wtsapi32.NewProc("WTSUnRegisterSessionNotification")
)

const (
	wmDestroy          = 0x0002
	wmClose            = 0x0010
	wmPowerBroadcast   = 0x0218
	wmWTSSessionChange = 0x02B1

	pbtAPMSuspend = 0x0004

	wtsConsoleDisconnect = 0x2
	wtsRemoteDisconnect  = 0x4
	wtsSessionLogoff     = 0x6
	wtsSessionLock       = 0x7

	notifyForThisSession = 0
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       windows.Handle
	Cursor     windows.Handle
	Background windows.Handle
	MenuName   *uint16
	ClassName  *uint16
	IconSm     windows.Handle
}

type winMsg struct {
	HWnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// activeSource is the single registered source; the window procedure is a
// C callback and needs a way back to it.
var (
	activeSourceMu sync.Mutex
	activeSource   *windowsSessionSource
)

// windowsSessionSource implements SessionEventSource on Windows via
// WTSRegisterSessionNotification plus WM_POWERBROADCAST.
type windowsSessionSource struct {
	events chan SessionEvent

	hwnd     uintptr
	ready    chan error
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHostEventSource returns the Windows session event source. Only one
// source may be active per process.
func NewHostEventSource() (SessionEventSource, error) {
	activeSourceMu.Lock()
	defer activeSourceMu.Unlock()
	if activeSource != nil {
		return nil, fmt.Errorf("host session event source already active")
	}
	s := &windowsSessionSource{
		events: make(chan SessionEvent, 8),
		ready:  make(chan error, 1),
	}
	activeSource = s
	return s, nil
}

// Events implements SessionEventSource.
func (s *windowsSessionSource) Events() <-chan SessionEvent {
	return s.events
}

// Start creates the hidden window and runs the message loop until Stop.
func (s *windowsSessionSource) Start() error {
	s.wg.Add(1)
	go s.run()
	return <-s.ready
}

// Stop tears down the window; the message loop exits and closes Events.
func (s *windowsSessionSource) Stop() {
	s.stopOnce.Do(func() {
		if s.hwnd != 0 {
			procPostMessageW.Call(s.hwnd, wmClose, 0, 0)
		}
		s.wg.Wait()
		activeSourceMu.Lock()
		activeSource = nil
		activeSourceMu.Unlock()
	})
}

// emit forwards an event without ever blocking the window thread. The
// channel is buffered well past any realistic event rate; an overflow is
// logged rather than stalling message dispatch.
func (s *windowsSessionSource) emit(event SessionEvent) {
	select {
	case s.events <- event:
	default:
		log.Printf("OS_BRIDGE: dropped %s, event channel full", event)
	}
}

// wndProc handles session-change and power messages.
func wndProc(hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
	activeSourceMu.Lock()
	s := activeSource
	activeSourceMu.Unlock()

	switch msg {
	case wmWTSSessionChange:
		if s != nil {
			switch wParam {
			case wtsSessionLock:
				s.emit(EventScreenLocked)
			case wtsConsoleDisconnect:
				s.emit(EventUserSwitched)
			case wtsRemoteDisconnect:
				s.emit(EventRemoteDisconnected)
			case wtsSessionLogoff:
				s.emit(EventLoggedOff)
			}
		}
		return 0
	case wmPowerBroadcast:
		if s != nil && wParam == pbtAPMSuspend {
			s.emit(EventSleepOrHibernate)
		}
		return 1
	case wmClose:
		procDestroyWindow.Call(hwnd)
		return 0
	case wmDestroy:
		procWTSUnRegisterSessionNotification.Call(hwnd)
		procPostQuitMessage.Call(0)
		return 0
	}
	ret, _, _ := procDefWindowProcW.Call(hwnd, uintptr(msg), wParam, lParam)
	return ret
}

// run owns the window for its whole lifetime; window handles are bound to
// the creating thread.
func (s *windowsSessionSource) run() {
	defer s.wg.Done()
	defer close(s.events)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	instance, err := windows.GetModuleHandle(nil)
	if err != nil {
		s.ready <- fmt.Errorf("GetModuleHandle: %w", err)
		return
	}

	className, err := windows.UTF16PtrFromString("WalletAppSessionWatch")
	if err != nil {
		s.ready <- err
		return
	}

	wc := wndClassEx{
		WndProc:   windows.NewCallback(wndProc),
		Instance:  instance,
		ClassName: className,
	}
	wc.Size = uint32(unsafe.Sizeof(wc))

	if atom, _, regErr := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); atom == 0 {
		s.ready <- fmt.Errorf("RegisterClassEx: %v", regErr)
		return
	}

	hwnd, _, createErr := procCreateWindowExW.Call(
		0,                                  // dwExStyle
		uintptr(unsafe.Pointer(className)), // lpClassName
		0,                                  // lpWindowName
		0,                                  // dwStyle (never shown)
		0, 0, 0, 0,                         // x, y, w, h
		0,                 // hWndParent: top-level, receives broadcasts
		0,                 // hMenu
		uintptr(instance), // hInstance
		0,                 // lpParam
	)
	if hwnd == 0 {
		s.ready <- fmt.Errorf("CreateWindowEx: %v", createErr)
		return
	}
	s.hwnd = hwnd

	if ok, _, wtsErr := procWTSRegisterSessionNotification.Call(hwnd, notifyForThisSession); ok == 0 {
		procDestroyWindow.Call(hwnd)
		s.ready <- fmt.Errorf("WTSRegisterSessionNotification: %v", wtsErr)
		return
	}

	s.ready <- nil

	var m winMsg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		// 0 = WM_QUIT, ^0 = error; either way the loop is done.
		if ret == 0 || int32(ret) == -1 {
			return
		}
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}
