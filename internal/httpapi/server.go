package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/miku/internal/config"
	"github.com/ent0n29/miku/internal/observability"
)

const welcomeMessage = "🎵 Welcome to the AI Song Recommendation Study Bot API!"

// Chatter runs one chat exchange.
type Chatter interface {
	HandleChat(ctx context.Context, userID, question string) (string, error)
}

// Backends describes the collaborators behind the relay for health and status output.
type Backends struct {
	Store interface {
		Ping(ctx context.Context) error
		Backend() string
	}
	CompletionProvider string
	LockMode           string
}

type Server struct {
	cfg      config.Config
	chat     Chatter
	backends Backends
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, chat Chatter, backends Backends, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		chat:     chat,
		backends: backends,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(cfg.CORSAllowedOrigins, r)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(s.cfg.CORSAllowedOrigins)))

	r.Get("/", s.handleHome)
	r.Post("/chat", s.handleChat)
	r.Get("/chat/ws", s.handleChatWS)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	return r
}

// corsOptions allows credentialed requests. A "*" entry echoes the caller's Origin,
// since browsers reject a literal "*" alongside Allow-Credentials.
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	for _, o := range origins {
		if o == "*" {
			opts.AllowedOrigins = nil
			opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
			break
		}
	}
	return opts
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

// chatRequest uses pointers so a missing key can be told apart from an empty string.
type chatRequest struct {
	UserID   *string `json:"user_id"`
	Question *string `json:"question"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (req chatRequest) validate() error {
	var missing []string
	if req.UserID == nil {
		missing = append(missing, "user_id")
	}
	if req.Question == nil {
		missing = append(missing, "question")
	}
	if len(missing) > 0 {
		return errors.New("missing required field(s): " + strings.Join(missing, ", "))
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
		return
	}

	reply, err := s.chat.HandleChat(r.Context(), *req.UserID, *req.Question)
	if err != nil {
		slog.Error("chat request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
		respondInternalError(w)
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{Response: reply})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store":      s.storeBackend(),
		"completion": s.backends.CompletionProvider,
		"user_lock":  s.backends.LockMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.backends.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.backends.Store.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"store":  s.storeBackend(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"store":  s.storeBackend(),
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotStages())
}

func (s *Server) storeBackend() string {
	if s.backends.Store == nil {
		return "none"
	}
	return s.backends.Store.Backend()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondInternalError hides fault details from callers; they are logged instead.
func respondInternalError(w http.ResponseWriter) {
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
