package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainClient calls an OpenAI-compatible chat completions API (Groq by default) through langchaingo.
type LangChainClient struct {
	llm         llms.Model
	model       string
	temperature float64
}

func NewLangChainClient(cfg Config) (*LangChainClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	llm, err := openai.New(
		openai.WithToken(strings.TrimSpace(cfg.APIKey)),
		openai.WithBaseURL(strings.TrimRight(baseURL, "/")),
		openai.WithModel(model),
		openai.WithHTTPClient(&statusDoer{client: &http.Client{Timeout: timeout}}),
	)
	if err != nil {
		return nil, &Fault{Provider: "langchain", Err: err}
	}
	return &LangChainClient{llm: llm, model: model, temperature: cfg.Temperature}, nil
}

func (c *LangChainClient) Complete(ctx context.Context, req Request) (Response, error) {
	msgs := make([]llms.MessageContent, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.History {
		msgs = append(msgs, llms.TextParts(chatMessageType(m.Role), m.Content))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Question))

	status := new(int)
	ctx = context.WithValue(ctx, statusKey{}, status)

	resp, err := c.llm.GenerateContent(ctx, msgs, llms.WithTemperature(c.temperature))
	if err != nil {
		// langchaingo reports deadline hits as plain text; keep the context cause visible to errors.Is.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", err, ctxErr)
		}
		return Response{}, &Fault{Provider: "langchain", StatusCode: *status, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Response{}, &Fault{Provider: "langchain", StatusCode: *status, Err: errors.New("response has no choices")}
	}
	return Response{Text: resp.Choices[0].Content}, nil
}

func chatMessageType(r Role) llms.ChatMessageType {
	if r == RoleHuman {
		return llms.ChatMessageTypeHuman
	}
	return llms.ChatMessageTypeAI
}

type statusKey struct{}

// statusDoer records the upstream HTTP status into the request context so faults can carry it.
type statusDoer struct {
	client *http.Client
}

func (d *statusDoer) Do(req *http.Request) (*http.Response, error) {
	res, err := d.client.Do(req)
	if res != nil {
		if p, ok := req.Context().Value(statusKey{}).(*int); ok {
			*p = res.StatusCode
		}
	}
	return res, err
}
