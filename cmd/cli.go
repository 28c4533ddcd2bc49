package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/answerdesk/answerdesk/internal/app"
	"github.com/answerdesk/answerdesk/internal/config"
	"github.com/answerdesk/answerdesk/internal/knowledge"
	"github.com/answerdesk/answerdesk/internal/log"
	"github.com/answerdesk/answerdesk/internal/queue"
)

// cliStores holds the store handles used by the admin subcommands,
// which talk to the database directly without going through the API.
type cliStores struct {
	knowledge *knowledge.Store
	queue     *queue.Store
	close     func()
}

// openStores connects to the database and builds the stores for a
// one-shot CLI invocation.
func openStores(ctx context.Context) (*cliStores, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelWarn})

	pool, err := app.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	_, embedder := app.NewGenkit(ctx, cfg)

	knowledgeStore, err := knowledge.NewStore(pool, embedder, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}

	queueStore, err := queue.NewStore(pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating queue store: %w", err)
	}

	return &cliStores{
		knowledge: knowledgeStore,
		queue:     queueStore,
		close:     pool.Close,
	}, nil
}
