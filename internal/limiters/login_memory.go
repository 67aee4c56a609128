package limiters

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 1024

type loginEntry struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// MemoryLoginThrottle keeps per-principal counters in process memory. It suits
// single-instance deployments and tests.
type MemoryLoginThrottle struct {
	mu      sync.Mutex
	config  LoginConfig
	entries map[string]*loginEntry
	ops     int
	now     func() time.Time
}

// NewMemoryLoginThrottle returns an in-memory throttle.
func NewMemoryLoginThrottle(cfg LoginConfig) (*MemoryLoginThrottle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MemoryLoginThrottle{
		config:  cfg,
		entries: make(map[string]*loginEntry),
		now:     time.Now,
	}, nil
}

// SetClock overrides the time source.
func (m *MemoryLoginThrottle) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Check implements LoginThrottle.
func (m *MemoryLoginThrottle) Check(_ context.Context, handle string) (LoginStatus, error) {
	if m == nil || handle == "" {
		return LoginStatus{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e := m.live(handle, now)
	if e == nil {
		return LoginStatus{}, nil
	}
	if now.Before(e.lockedUntil) {
		return lockedStatus(e.lockedUntil.Sub(now))
	}
	return LoginStatus{State: m.config.stateFor(e.failures), Failures: e.failures}, nil
}

// RecordFailure implements LoginThrottle.
func (m *MemoryLoginThrottle) RecordFailure(_ context.Context, handle string) (LoginStatus, error) {
	if m == nil || handle == "" {
		return LoginStatus{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.maybeSweep(now)

	e := m.live(handle, now)
	if e == nil {
		e = &loginEntry{}
		m.entries[handle] = e
	}
	if now.Before(e.lockedUntil) {
		return lockedStatus(e.lockedUntil.Sub(now))
	}

	e.failures++
	e.lastFailure = now
	if e.failures >= m.config.Threshold {
		e.failures = 0
		e.lockedUntil = now.Add(m.config.Cooldown)
		return lockedStatus(m.config.Cooldown)
	}
	return LoginStatus{State: m.config.stateFor(e.failures), Failures: e.failures}, nil
}

// Reset implements LoginThrottle. An active lock is left to expire.
func (m *MemoryLoginThrottle) Reset(_ context.Context, handle string) error {
	if m == nil || handle == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[handle]
	if !ok {
		return nil
	}
	if m.now().Before(e.lockedUntil) {
		e.failures = 0
		return nil
	}
	delete(m.entries, handle)
	return nil
}

// Unlock implements LoginThrottle.
func (m *MemoryLoginThrottle) Unlock(_ context.Context, handle string) error {
	if m == nil || handle == "" {
		return nil
	}
	m.mu.Lock()
	delete(m.entries, handle)
	m.mu.Unlock()
	return nil
}

// live returns the entry for handle, dropping it first if it has gone idle.
func (m *MemoryLoginThrottle) live(handle string, now time.Time) *loginEntry {
	e, ok := m.entries[handle]
	if !ok {
		return nil
	}
	if m.stale(e, now) {
		delete(m.entries, handle)
		return nil
	}
	return e
}

func (m *MemoryLoginThrottle) stale(e *loginEntry, now time.Time) bool {
	if now.Before(e.lockedUntil) {
		return false
	}
	return e.failures == 0 || now.Sub(e.lastFailure) >= m.config.FailureWindow
}

func (m *MemoryLoginThrottle) maybeSweep(now time.Time) {
	m.ops++
	if m.ops%sweepEvery != 0 {
		return
	}
	for handle, e := range m.entries {
		if m.stale(e, now) {
			delete(m.entries, handle)
		}
	}
}
