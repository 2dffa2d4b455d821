package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// DefaultLimit is the window used when a caller passes a non-positive limit.
	DefaultLimit = 6
)

// ErrStorageUnavailable marks any failure to reach or use the underlying store.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ChatTurn stores a single user or assistant message. Turns are never updated or deleted.
type ChatTurn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the append-only gateway over persisted chat turns.
type Store interface {
	// Append durably persists one turn.
	Append(ctx context.Context, turn ChatTurn) error
	// RecentTurns returns up to limit of the newest turns for userID, oldest first.
	RecentTurns(ctx context.Context, userID string, limit int) ([]ChatTurn, error)
	Ping(ctx context.Context) error
	Backend() string
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func reverse(turns []ChatTurn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
