// Package chat runs one question/answer exchange: window the history, ask the model, record both turns.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ent0n29/miku/internal/completion"
	"github.com/ent0n29/miku/internal/history"
	"github.com/ent0n29/miku/internal/memory"
	"github.com/ent0n29/miku/internal/observability"
	"github.com/ent0n29/miku/internal/policy"
	"github.com/ent0n29/miku/internal/reliability"
	"github.com/ent0n29/miku/internal/userlock"
)

// Store is the part of the message store the orchestrator reads and writes.
type Store interface {
	Append(ctx context.Context, turn memory.ChatTurn) error
	RecentTurns(ctx context.Context, userID string, limit int) ([]memory.ChatTurn, error)
}

// Config holds the orchestrator's tunables. Zero values fall back to defaults.
type Config struct {
	HistoryLimit      int
	CompletionTimeout time.Duration
	SystemPrompt      string
}

type Orchestrator struct {
	store    Store
	client   completion.Client
	provider string
	locks    userlock.Locker
	metrics  *observability.Metrics
	cfg      Config
	now      func() time.Time
}

func NewOrchestrator(store Store, client completion.Client, locks userlock.Locker, metrics *observability.Metrics, cfg Config) *Orchestrator {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = history.DefaultLimit
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 60 * time.Second
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = completion.SystemPrompt
	}
	if locks == nil {
		locks = userlock.NewLocal()
	}
	return &Orchestrator{
		store:    store,
		client:   client,
		provider: completion.Provider(client),
		locks:    locks,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
	}
}

// HandleChat answers question for userID and records the exchange.
// Nothing is persisted unless the completion succeeds. A write failure after a successful
// completion is returned as an error and the reply is dropped.
func (o *Orchestrator) HandleChat(ctx context.Context, userID, question string) (string, error) {
	started := time.Now()
	log := slog.With("user_id", userID)

	lockStart := time.Now()
	unlock, err := o.locks.Lock(ctx, userID)
	if err != nil {
		o.metrics.ObserveChat("lock_error")
		return "", fmt.Errorf("acquire user lock: %w", err)
	}
	defer unlock()
	o.metrics.ObserveLockWait(time.Since(lockStart))

	readStart := time.Now()
	transcript, err := history.Build(ctx, o.store, userID, o.cfg.HistoryLimit)
	if err != nil {
		o.metrics.ObserveStoreError("recent_turns")
		o.metrics.ObserveChat("store_error")
		log.Error("load history failed", "err", err)
		return "", fmt.Errorf("load history: %w", err)
	}
	o.metrics.ObserveStage(observability.StageHistoryRead, time.Since(readStart))

	reply, err := o.complete(ctx, transcript, question)
	if err != nil {
		code := reliability.FaultCode(err)
		o.metrics.ObserveProviderError(o.provider, code)
		o.metrics.ObserveChat("completion_error")
		log.Error("completion failed",
			"provider", o.provider,
			"code", code,
			"retryable", reliability.Retryable(err),
			"question", policy.LogPreview(question, 80),
			"err", err,
		)
		return "", err
	}

	// The pair is written even if the caller goes away mid-write.
	writeCtx := context.WithoutCancel(ctx)
	persistStart := time.Now()
	userTS := o.now().UTC()
	assistantTS := o.now().UTC()
	if assistantTS.Before(userTS) {
		assistantTS = userTS
	}
	turns := []memory.ChatTurn{
		{UserID: userID, Role: memory.RoleUser, Message: question, Timestamp: userTS},
		{UserID: userID, Role: memory.RoleAssistant, Message: reply, Timestamp: assistantTS},
	}
	for _, turn := range turns {
		if err := o.store.Append(writeCtx, turn); err != nil {
			o.metrics.ObserveStoreError("append")
			o.metrics.ObserveChat("store_error")
			log.Error("persist turn failed after completion; reply dropped",
				"role", turn.Role,
				"reply_chars", len(reply),
				"err", err,
			)
			return "", fmt.Errorf("persist %s turn: %w", turn.Role, err)
		}
	}
	o.metrics.ObserveStage(observability.StagePersist, time.Since(persistStart))

	o.metrics.ObserveChat("ok")
	o.metrics.ObserveStage(observability.StageChatTotal, time.Since(started))
	log.Info("chat exchange recorded",
		"history_turns", len(transcript),
		"reply_chars", len(reply),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return reply, nil
}

func (o *Orchestrator) complete(ctx context.Context, transcript []completion.Message, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.CompletionTimeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.Complete(ctx, completion.Request{
		System:   o.cfg.SystemPrompt,
		History:  transcript,
		Question: question,
	})
	o.metrics.ObserveCompletionLatency(time.Since(start))
	if err != nil {
		if !errors.Is(err, completion.ErrCompletionFault) {
			err = &completion.Fault{Provider: o.provider, Err: err}
		}
		return "", err
	}
	return resp.Text, nil
}
