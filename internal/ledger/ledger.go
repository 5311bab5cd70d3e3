// Package ledger keeps a bounded-retention record of processed billing event IDs.
//
// The ledger is an audit aid only. Entitlement transitions are idempotent on their own,
// so a redelivered event is still processed; the ledger just lets the reconciler say so.
package ledger

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL covers the payment provider's automatic retry window.
const DefaultTTL = 72 * time.Hour

// Ledger records processed event IDs for a limited time.
type Ledger interface {
	// Seen reports whether eventID was recorded and has not yet expired.
	Seen(ctx context.Context, eventID string) (bool, error)
	// Record marks eventID as processed.
	Record(ctx context.Context, eventID, eventType string) error
	Close() error
}

// Memory is an in-process Ledger with TTL expiry.
type Memory struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	data   map[string]entry
	closed chan struct{}
	once   sync.Once
}

type entry struct {
	eventType string
	exp       time.Time
}

// NewMemory creates an in-memory ledger. If ttl <= 0, DefaultTTL is used.
// Starts a background goroutine that removes expired entries every minute.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{ttl: ttl, now: time.Now, data: make(map[string]entry), closed: make(chan struct{})}
	go m.cleanupLoop()
	return m
}

func (m *Memory) Seen(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[eventID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(e.exp) {
		delete(m.data, eventID)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Record(_ context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[eventID] = entry{eventType: eventType, exp: m.now().Add(m.ttl)}
	return nil
}

// Len returns the number of entries currently held, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.closed:
			return
		}
	}
}

func (m *Memory) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.data {
		if !now.Before(e.exp) {
			delete(m.data, k)
		}
	}
}

// Close stops the background cleanup goroutine.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

// Nop is a Ledger that records nothing.
type Nop struct{}

func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }

func (Nop) Record(context.Context, string, string) error { return nil }

func (Nop) Close() error { return nil }
