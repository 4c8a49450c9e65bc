// Copyright (c) 2025 Krzysztof Zaklikiewicz
// SPDX-License-Identifier: MIT

package security

import (
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kzaklikiewicz/wallet-app/internal/store"
)

// memStore is an in-memory AuthStore for tests that do not exercise
// durability.
type memStore struct {
	mu       sync.Mutex
	settings store.AuthSettings
}

func newMemStore() *memStore {
	return &memStore{settings: *store.DefaultSettings()}
}

func (m *memStore) Load() (*store.AuthSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.settings
	return &s, nil
}

func (m *memStore) Save(s *store.AuthSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = *s
	return nil
}

// fakeClock is a settable clock shared by the components under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fastHasher keeps test runtimes sane; production cost stays at 12.
func fastHasher() *Hasher {
	return &Hasher{cost: bcrypt.MinCost}
}

// testAuthManager wires an AuthManager with a fake clock and fast hasher
// over the given store.
func testAuthManager(st store.AuthStore, clock *fakeClock) *AuthManager {
	return NewAuthManager(st,
		WithHasher(fastHasher()),
		WithClock(clock.Now),
	)
}
