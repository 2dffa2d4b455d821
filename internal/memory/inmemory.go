package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]ChatTurn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{turns: make(map[string][]ChatTurn)}
}

func (s *InMemoryStore) Append(ctx context.Context, turn ChatTurn) error {
	if err := ctx.Err(); err != nil {
		return unavailable("append turn", err)
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	arr := s.turns[turn.UserID]
	// Keep the slice sorted by timestamp; equal timestamps stay in insertion order.
	i := sort.Search(len(arr), func(i int) bool { return arr[i].Timestamp.After(turn.Timestamp) })
	arr = append(arr, ChatTurn{})
	copy(arr[i+1:], arr[i:])
	arr[i] = turn
	s.turns[turn.UserID] = arr
	return nil
}

func (s *InMemoryStore) RecentTurns(ctx context.Context, userID string, limit int) ([]ChatTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("query recent turns", err)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[userID]
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]ChatTurn, 0, limit)
	out = append(out, arr[len(arr)-limit:]...)
	return out, nil
}

func (s *InMemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *InMemoryStore) Backend() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }
