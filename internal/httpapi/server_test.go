package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/miku/internal/chat"
	"github.com/ent0n29/miku/internal/completion"
	"github.com/ent0n29/miku/internal/config"
	"github.com/ent0n29/miku/internal/memory"
	"github.com/ent0n29/miku/internal/observability"
)

var testMetrics = observability.NewMetrics("test_httpapi")

type fixedClient struct {
	reply string
	err   error
}

func (c fixedClient) Complete(context.Context, completion.Request) (completion.Response, error) {
	if c.err != nil {
		return completion.Response{}, c.err
	}
	return completion.Response{Text: c.reply}, nil
}

type pingStore struct {
	*memory.InMemoryStore
	err error
}

func (s pingStore) Ping(context.Context) error { return s.err }

func newTestServer(t *testing.T, client completion.Client) (*httptest.Server, *memory.InMemoryStore) {
	t.Helper()
	cfg := config.Config{CORSAllowedOrigins: []string{"*"}, CompletionModel: "test-model"}
	store := memory.NewInMemoryStore()
	orchestrator := chat.NewOrchestrator(store, client, nil, testMetrics, chat.Config{})
	srv := New(cfg, orchestrator, Backends{Store: store, CompletionProvider: "mock", LockMode: "local"}, testMetrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func postChat(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	res, err := http.Post(url+"/chat", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /chat error = %v", err)
	}
	defer res.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res, payload
}

func TestHome(t *testing.T) {
	ts, _ := newTestServer(t, fixedClient{})

	res, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var payload map[string]string
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["message"] != welcomeMessage {
		t.Fatalf("message = %q, want %q", payload["message"], welcomeMessage)
	}
}

func TestChatScenarioAlice(t *testing.T) {
	reply := "Song A - Artist X\nGood tempo for focus."
	ts, store := newTestServer(t, fixedClient{reply: reply})

	res, payload := postChat(t, ts.URL, `{"user_id":"alice","question":"Recommend upbeat study music"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d (%v)", res.StatusCode, http.StatusOK, payload)
	}
	if payload["response"] != reply {
		t.Fatalf("response = %q, want %q", payload["response"], reply)
	}
	if len(payload) != 1 {
		t.Fatalf("payload = %v, want only the response key", payload)
	}

	turns, err := store.RecentTurns(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Message != "Recommend upbeat study music" {
		t.Fatalf("turns[0] = %+v", turns[0])
	}
	if turns[1].Role != "assistant" || turns[1].Message != reply {
		t.Fatalf("turns[1] = %+v", turns[1])
	}
}

func TestChatEmptyFieldsPassThrough(t *testing.T) {
	ts, store := newTestServer(t, fixedClient{reply: "ok"})

	res, _ := postChat(t, ts.URL, `{"user_id":"","question":""}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	turns, _ := store.RecentTurns(context.Background(), "", 10)
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
}

func TestChatRejectsMissingFields(t *testing.T) {
	ts, _ := newTestServer(t, fixedClient{reply: "ok"})

	for _, body := range []string{`{"user_id":"alice"}`, `{"question":"hi"}`, `{}`, `not json`, ``} {
		res, payload := postChat(t, ts.URL, body)
		if res.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("body %q: status = %d, want %d", body, res.StatusCode, http.StatusUnprocessableEntity)
		}
		if payload["code"] != "invalid_request" {
			t.Fatalf("body %q: code = %v, want invalid_request", body, payload["code"])
		}
	}
}

func TestChatFaultIsOpaque500(t *testing.T) {
	ts, store := newTestServer(t, fixedClient{err: &completion.Fault{Provider: "groq", StatusCode: 401, Err: errors.New("invalid api key gsk_secret")}})

	res, payload := postChat(t, ts.URL, `{"user_id":"alice","question":"hi"}`)
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}
	if payload["code"] != "internal_error" {
		t.Fatalf("code = %v, want internal_error", payload["code"])
	}
	if strings.Contains(payload["error"].(string), "gsk_secret") {
		t.Fatalf("error body leaked fault detail: %v", payload)
	}
	turns, _ := store.RecentTurns(context.Background(), "alice", 10)
	if len(turns) != 0 {
		t.Fatalf("len(turns) = %d, want 0", len(turns))
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, fixedClient{reply: "ok"})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/chat", nil)
	req.Header.Set("Origin", "https://frontend.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /chat error = %v", err)
	}
	defer res.Body.Close()
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "https://frontend.example" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want echoed origin", got)
	}
	if got := res.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("Access-Control-Allow-Credentials = %q, want true", got)
	}
}

func TestCORSEchoesOriginWithCredentials(t *testing.T) {
	ts, _ := newTestServer(t, fixedClient{reply: "ok"})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Cookie", "session=abc")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer res.Body.Close()
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want %q", got, "https://app.example")
	}
	if got := res.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("Access-Control-Allow-Credentials = %q, want true", got)
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	opts := corsOptions([]string{"https://app.example"})
	if opts.AllowOriginFunc != nil {
		t.Fatalf("AllowOriginFunc set for an explicit origin list")
	}
	if len(opts.AllowedOrigins) != 1 || opts.AllowedOrigins[0] != "https://app.example" {
		t.Fatalf("AllowedOrigins = %v", opts.AllowedOrigins)
	}
}

func TestReadyReflectsStorePing(t *testing.T) {
	cfg := config.Config{CORSAllowedOrigins: []string{"*"}}
	store := pingStore{InMemoryStore: memory.NewInMemoryStore(), err: errors.New("down")}
	srv := New(cfg, nil, Backends{Store: store, CompletionProvider: "mock", LockMode: "local"}, testMetrics)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}

	health, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", health.StatusCode, http.StatusOK)
	}
}

func TestStatusWarnsForDevBackends(t *testing.T) {
	ts, _ := newTestServer(t, fixedClient{reply: "ok"})

	res, err := http.Get(ts.URL + "/v1/status")
	if err != nil {
		t.Fatalf("GET /v1/status error = %v", err)
	}
	defer res.Body.Close()
	var payload statusResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Store != "in-memory" || payload.Completion != "mock" || payload.UserLock != "local" {
		t.Fatalf("unexpected status: %+v", payload)
	}
	warns := 0
	for _, c := range payload.Checks {
		if c.Status == "warn" {
			warns++
		}
	}
	if warns != 2 {
		t.Fatalf("warn checks = %d, want 2 (%+v)", warns, payload.Checks)
	}
}

func TestPerfLatencyAfterChat(t *testing.T) {
	ts, _ := newTestServer(t, fixedClient{reply: "ok"})
	postChat(t, ts.URL, `{"user_id":"perf","question":"hi"}`)

	res, err := http.Get(ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET /v1/perf/latency error = %v", err)
	}
	defer res.Body.Close()
	var snap observability.StageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	found := false
	for _, s := range snap.Stages {
		if s.Stage == observability.StageChatTotal && s.Samples > 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("chat_total stage missing from %+v", snap.Stages)
	}
}

func TestChatWebSocket(t *testing.T) {
	ts, store := newTestServer(t, fixedClient{reply: "ws reply"})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"user_id":"bob","question":"lofi?"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var ok map[string]string
	if err := conn.ReadJSON(&ok); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ok["response"] != "ws reply" {
		t.Fatalf("response = %q, want %q", ok["response"], "ws reply")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"user_id":"bob"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var bad map[string]string
	if err := conn.ReadJSON(&bad); err != nil {
		t.Fatalf("read: %v", err)
	}
	if bad["code"] != "invalid_request" {
		t.Fatalf("code = %q, want invalid_request", bad["code"])
	}

	turns, _ := store.RecentTurns(context.Background(), "bob", 10)
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
}

func TestOriginAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://relay.example/chat/ws", nil)
	req.Host = "relay.example"

	cases := []struct {
		allowed []string
		origin  string
		want    bool
	}{
		{nil, "", true},
		{[]string{"*"}, "https://anything.example", true},
		{[]string{"https://app.example"}, "https://app.example", true},
		{[]string{"https://app.example"}, "https://evil.example", false},
		{nil, "http://relay.example", true},
		{nil, "ftp://relay.example", false},
	}
	for _, tc := range cases {
		req.Header.Set("Origin", tc.origin)
		if got := originAllowed(tc.allowed, req); got != tc.want {
			t.Fatalf("originAllowed(%v, %q) = %v, want %v", tc.allowed, tc.origin, got, tc.want)
		}
	}
}

func TestDecodeJSONEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(nil))
	var out chatRequest
	if err := decodeJSON(req, &out); !errors.Is(err, errEmptyBody) {
		t.Fatalf("decodeJSON() error = %v, want errEmptyBody", err)
	}
}

type blockingChatter struct {
	started  chan struct{}
	canceled chan struct{}
}

func (c *blockingChatter) HandleChat(ctx context.Context, _, _ string) (string, error) {
	close(c.started)
	select {
	case <-ctx.Done():
		close(c.canceled)
		return "", ctx.Err()
	case <-time.After(10 * time.Second):
		return "late", nil
	}
}

func TestChatWebSocketDisconnectCancelsExchange(t *testing.T) {
	chatter := &blockingChatter{started: make(chan struct{}), canceled: make(chan struct{})}
	cfg := config.Config{CORSAllowedOrigins: []string{"*"}}
	srv := New(cfg, chatter, Backends{Store: memory.NewInMemoryStore(), CompletionProvider: "mock", LockMode: "local"}, testMetrics)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"user_id":"dave","question":"slow?"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-chatter.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("exchange did not start")
	}
	_ = conn.Close()

	select {
	case <-chatter.canceled:
	case <-time.After(5 * time.Second):
		t.Fatalf("exchange context not canceled after client disconnect")
	}
}
