// Package memory implements the OTP store on an in-process map. It is
// the fallback when no external store is configured; all state is lost
// on restart.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stratauth/otpauth/internal/store"
	"github.com/stratauth/otpauth/pkg/models"
)

const (
	defaultMaxEntries    = 100000
	defaultSweepInterval = time.Minute
)

// ErrFull is thrown when the store holds MaxEntries live records and
// another key is set.
var ErrFull = errors.New("memory store is full")

// Conf contains in-memory store configuration fields.
type Conf struct {
	// MaxEntries bounds the number of records held at once.
	MaxEntries int `json:"max_entries"`

	// SweepInterval is how often the janitor purges expired records.
	// Reads never depend on the janitor; stale records are treated as
	// absent regardless.
	SweepInterval time.Duration `json:"sweep_interval"`
}

type entry struct {
	code      string
	expiresAt time.Time
}

// Memory implements an in-process Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	conf    Conf

	// now is swapped out in tests to simulate the passage of time.
	now func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New returns an in-memory implementation of store and starts its
// janitor goroutine. Close stops the janitor.
func New(c Conf) *Memory {
	if c.MaxEntries < 1 {
		c.MaxEntries = defaultMaxEntries
	}
	if c.SweepInterval.Seconds() < 1 {
		c.SweepInterval = defaultSweepInterval
	}

	m := &Memory{
		entries: make(map[string]entry),
		conf:    c,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go m.janitor()

	return m
}

// Ping always reports the store as reachable.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// Set stores the code against the key with an expiry of now + ttl.
func (m *Memory) Set(ctx context.Context, key, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok && len(m.entries) >= m.conf.MaxEntries {
		m.purgeLocked()
		if len(m.entries) >= m.conf.MaxEntries {
			return ErrFull
		}
	}

	m.entries[key] = entry{
		code:      code,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

// Get returns the record at key if it hasn't expired. A stale record
// is deleted on sight and reported as absent.
func (m *Memory) Get(ctx context.Context, key string) (models.OTPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return models.OTPRecord{}, store.ErrNotExist
	}

	return models.OTPRecord{Code: e.code, ExpiresAt: e.expiresAt}, nil
}

// Take returns the record at key and deletes it under the same lock,
// so only one of any number of racing takes sees it.
func (m *Memory) Take(ctx context.Context, key string) (models.OTPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	delete(m.entries, key)
	if !ok || m.now().After(e.expiresAt) {
		return models.OTPRecord{}, store.ErrNotExist
	}

	return models.OTPRecord{Code: e.code, ExpiresAt: e.expiresAt}, nil
}

// Delete deletes the record saved against the given key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Close stops the janitor goroutine.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	return nil
}

// janitor periodically purges expired records so an idle store doesn't
// hold on to dead entries until their keys are touched again.
func (m *Memory) janitor() {
	t := time.NewTicker(m.conf.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			m.mu.Lock()
			m.purgeLocked()
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}

// purgeLocked drops all expired entries. Callers must hold mu.
func (m *Memory) purgeLocked() {
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}
