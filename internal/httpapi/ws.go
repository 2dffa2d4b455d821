package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadLimit    = 1 << 20
	wsIdleTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleChatWS serves the same exchange as POST /chat over a websocket, one frame per question.
// Frames are handled in order, so a connection never has two exchanges in flight.
// A dedicated reader watches the socket so a dropped client cancels the exchange in progress.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames := make(chan []byte)
	go func() {
		defer cancel()
		defer close(frames)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
			if msgType != websocket.TextMessage {
				continue
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range frames {
		s.metrics.ObserveWSMessage("inbound")

		var out any
		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			out = errorResponse{Error: err.Error(), Code: "invalid_request"}
		} else if err := req.validate(); err != nil {
			out = errorResponse{Error: err.Error(), Code: "invalid_request"}
		} else if reply, err := s.chat.HandleChat(ctx, *req.UserID, *req.Question); err != nil {
			slog.Error("websocket chat failed", "err", err)
			out = errorResponse{Error: "internal server error", Code: "internal_error"}
		} else {
			out = chatResponse{Response: reply}
		}

		if ctx.Err() != nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(out); err != nil {
			return
		}
		s.metrics.ObserveWSMessage("outbound")
	}
}

// originAllowed accepts non-browser clients, same-origin pages and configured origins.
func originAllowed(allowed []string, r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
