package httpapi

import (
	"context"
	"net/http"
	"time"
)

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	Store      string        `json:"store"`
	Completion string        `json:"completion"`
	UserLock   string        `json:"user_lock"`
	Checks     []statusCheck `json:"checks"`
}

// handleStatus explains which backends are active and what an operator should change.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	checks := make([]statusCheck, 0, 4)

	store := s.storeBackend()
	switch store {
	case "in-memory":
		checks = append(checks, statusCheck{
			ID:     "store",
			Status: "warn",
			Label:  "Message store",
			Detail: "history is kept in process memory and lost on restart",
			Fix:    "set DATABASE_URL to a postgres:// or sqlite:// URL",
		})
	case "none":
		checks = append(checks, statusCheck{ID: "store", Status: "error", Label: "Message store", Detail: "not configured"})
	default:
		checks = append(checks, s.storePingCheck(r.Context(), store))
	}

	if s.backends.CompletionProvider == "mock" {
		checks = append(checks, statusCheck{
			ID:     "completion",
			Status: "warn",
			Label:  "Completion service",
			Detail: "mock replies",
			Fix:    "set GROQ_API_KEY (or COMPLETION_MODE=langchain with a key)",
		})
	} else {
		checks = append(checks, statusCheck{
			ID:     "completion",
			Status: "ok",
			Label:  "Completion service",
			Detail: s.backends.CompletionProvider + " / " + s.cfg.CompletionModel,
		})
	}

	lockCheck := statusCheck{ID: "user_lock", Status: "ok", Label: "Per-user serialization", Detail: s.backends.LockMode}
	if s.backends.LockMode == "local" {
		lockCheck.Detail = "local (single instance only)"
		lockCheck.Fix = "set REDIS_URL when running more than one instance"
	}
	checks = append(checks, lockCheck)

	respondJSON(w, http.StatusOK, statusResponse{
		Store:      store,
		Completion: s.backends.CompletionProvider,
		UserLock:   s.backends.LockMode,
		Checks:     checks,
	})
}

func (s *Server) storePingCheck(ctx context.Context, backend string) statusCheck {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.backends.Store.Ping(ctx); err != nil {
		return statusCheck{ID: "store", Status: "error", Label: "Message store", Detail: backend + ": " + err.Error()}
	}
	return statusCheck{ID: "store", Status: "ok", Label: "Message store", Detail: backend}
}
