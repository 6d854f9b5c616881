// Package idempotency records which payment notifications have already been
// turned into ERP orders, so a redelivered webhook does not create a second one.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long a processed key is remembered. Mercado Pago
// retries notifications for well under this window.
const DefaultTTL = 72 * time.Hour

// Store is a set of keys with expiry.
type Store interface {
	// Reserve atomically adds key if absent or expired.
	// It returns true when the caller now owns the key.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release removes key so a later delivery can retry.
	Release(ctx context.Context, key string) error

	Close() error
}

// PaymentKey is the key reserved for a Mercado Pago payment id.
func PaymentKey(paymentID string) string {
	return "mp:payment:" + paymentID
}

// MemoryStore is a process-local Store. A janitor goroutine drops expired keys.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	now       func() time.Time
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryStore creates a MemoryStore and starts its janitor.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.janitor(5 * time.Minute)
	return s
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.entries[key] = now.Add(ttl)
	return true, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Close stops the janitor. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

// Len returns the number of tracked keys, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) janitor(every time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, key)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
