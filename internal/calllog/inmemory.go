package calllog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrCallNotFound = errors.New("call not found")

// InMemoryStore keeps the call log in process memory. It is the default
// when no DATABASE_URL is configured, and the worker's console mode uses it
// so a database is never required for local runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	calls map[string]*Call
	turns map[string][]Turn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		calls: make(map[string]*Call),
		turns: make(map[string][]Turn),
	}
}

func (s *InMemoryStore) StartCall(_ context.Context, call Call) error {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.StartedAt.IsZero() {
		call.StartedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := call
	s.calls[call.ID] = &c
	return nil
}

func (s *InMemoryStore) EndCall(_ context.Context, callID string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	if !ok {
		return ErrCallNotFound
	}
	t := endedAt.UTC()
	c.EndedAt = &t
	return nil
}

func (s *InMemoryStore) SaveTurn(_ context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[turn.CallID]; !ok {
		return ErrCallNotFound
	}
	s.turns[turn.CallID] = append(s.turns[turn.CallID], turn)
	return nil
}

func (s *InMemoryStore) RecentCalls(_ context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Call, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Turns(_ context.Context, callID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.calls[callID]; !ok {
		return nil, ErrCallNotFound
	}
	turns := s.turns[callID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
