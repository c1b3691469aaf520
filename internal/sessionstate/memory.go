package sessionstate

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/fintrack/internal/clock"
	licensedomain "github.com/smallbiznis/fintrack/internal/license/domain"
)

type memoryEntry struct {
	state     licensedomain.SessionState
	expiresAt time.Time
}

type MemoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memoryEntry
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &MemoryStore{clock: clk, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*licensedomain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && !s.clock.Now().Before(entry.expiresAt) {
		delete(s.entries, sessionID)
		return nil, nil
	}
	state := entry.state
	state.Features = append([]string(nil), entry.state.Features...)
	return &state, nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, state licensedomain.SessionState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{state: state}
	entry.state.Features = append([]string(nil), state.Features...)
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}
	s.entries[sessionID] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}
