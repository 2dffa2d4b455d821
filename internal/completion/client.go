package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCompletionFault marks any failure of the hosted completion service.
var ErrCompletionFault = errors.New("completion service fault")

// Role tags understood by completion backends.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of the conversation transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the full prompt context for a single completion.
type Request struct {
	System   string
	History  []Message
	Question string
}

// Response carries the generated reply text. Text may be empty.
type Response struct {
	Text string
}

// Client sends one blocking completion request.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Fault describes a failed completion call.
type Fault struct {
	Provider   string
	StatusCode int
	Err        error
}

func (f *Fault) Error() string {
	if f.StatusCode > 0 {
		return fmt.Sprintf("%s: %s status %d: %v", ErrCompletionFault, f.Provider, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrCompletionFault, f.Provider, f.Err)
}

func (f *Fault) Unwrap() []error { return []error{ErrCompletionFault, f.Err} }

// Config controls client construction.
type Config struct {
	Mode        string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "openai/gpt-oss-120b"
	DefaultTemperature = 0.7
)

func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return NewMockClient(), nil
		}
		return NewLangChainClient(cfg)
	case "langchain", "groq":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("completion API key is required for langchain mode")
		}
		return NewLangChainClient(cfg)
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported completion mode %q", cfg.Mode)
	}
}

// Provider names the backend of c for logs and metrics.
func Provider(c Client) string {
	switch c.(type) {
	case *LangChainClient:
		return "langchain"
	case *MockClient:
		return "mock"
	default:
		return "custom"
	}
}
