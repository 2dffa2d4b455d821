// Package history turns stored chat turns into the role-tagged transcript sent to the completion service.
package history

import (
	"context"
	"log/slog"

	"github.com/ent0n29/miku/internal/completion"
	"github.com/ent0n29/miku/internal/memory"
)

// DefaultLimit is three user/assistant exchanges.
const DefaultLimit = memory.DefaultLimit

// Reader is the slice of the store the window needs.
type Reader interface {
	RecentTurns(ctx context.Context, userID string, limit int) ([]memory.ChatTurn, error)
}

// Build returns the newest limit turns for userID, oldest first. It reads the store on every call.
func Build(ctx context.Context, store Reader, userID string, limit int) ([]completion.Message, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	turns, err := store.RecentTurns(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]completion.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, completion.Message{Role: RoleTag(t.Role), Content: t.Message})
	}
	return out, nil
}

// RoleTag maps a stored role to a transcript tag. Anything other than "user" is assistant output.
func RoleTag(role string) completion.Role {
	switch role {
	case memory.RoleUser:
		return completion.RoleHuman
	case memory.RoleAssistant:
		return completion.RoleAssistant
	default:
		slog.Warn("unknown stored role treated as assistant", "role", role)
		return completion.RoleAssistant
	}
}
