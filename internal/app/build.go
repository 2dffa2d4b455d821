package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ent0n29/miku/internal/chat"
	"github.com/ent0n29/miku/internal/completion"
	"github.com/ent0n29/miku/internal/config"
	"github.com/ent0n29/miku/internal/httpapi"
	"github.com/ent0n29/miku/internal/memory"
	"github.com/ent0n29/miku/internal/observability"
	"github.com/ent0n29/miku/internal/userlock"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Store        memory.Store
	Orchestrator *chat.Orchestrator
	Metrics      *observability.Metrics
	Provider     string
	LockMode     string

	// Cleanup should be called on shutdown to release external resources (DB pool, Redis client).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	client, err := completion.NewClient(completionConfig(cfg))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("completion client init failed: %w", err)
	}
	provider := completion.Provider(client)

	locks, err := userlock.New(ctx, cfg.RedisURL, cfg.UserLockTTL)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("user lock init failed: %w", err)
	}

	orchestrator := chat.NewOrchestrator(store, client, locks, metrics, chat.Config{
		HistoryLimit:      cfg.HistoryLimit,
		CompletionTimeout: cfg.CompletionTimeout,
		SystemPrompt:      completion.SystemPrompt,
	})

	api := httpapi.New(cfg, orchestrator, httpapi.Backends{
		Store:              store,
		CompletionProvider: provider,
		LockMode:           locks.Mode(),
	}, metrics)

	slog.Info("relay wired",
		"store", store.Backend(),
		"completion", provider,
		"model", cfg.CompletionModel,
		"user_lock", locks.Mode(),
		"history_limit", cfg.HistoryLimit,
	)

	cleanup := func() error {
		return errors.Join(locks.Close(), store.Close())
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Store:        store,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Provider:     provider,
		LockMode:     locks.Mode(),
		Cleanup:      cleanup,
	}, nil
}

func completionConfig(cfg config.Config) completion.Config {
	return completion.Config{
		Mode:        cfg.CompletionMode,
		APIKey:      cfg.CompletionAPIKey,
		BaseURL:     cfg.CompletionBaseURL,
		Model:       cfg.CompletionModel,
		Temperature: cfg.CompletionTemperature,
		Timeout:     cfg.CompletionTimeout,
	}
}
