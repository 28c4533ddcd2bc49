// Package app wires the application together: configuration, logging,
// tracing, Genkit, the database pool, stores, the answer pipeline, and
// the HTTP server. All construction is explicit; nothing here is a
// process-scope singleton.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/answerdesk/answerdesk/db"
	"github.com/answerdesk/answerdesk/internal/api"
	"github.com/answerdesk/answerdesk/internal/config"
	"github.com/answerdesk/answerdesk/internal/knowledge"
	"github.com/answerdesk/answerdesk/internal/observability"
	"github.com/answerdesk/answerdesk/internal/pipeline"
	"github.com/answerdesk/answerdesk/internal/queue"
)

// App holds the fully wired serve-mode application.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Genkit    *genkit.Genkit
	Knowledge *knowledge.Store
	Queue     *queue.Store
	Pipeline  *pipeline.Service
	Server    *api.Server

	tracingShutdown func(context.Context) error
}

// New wires the full serve-mode application. The returned App must be
// closed with Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.ValidateServe(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var tracingShutdown func(context.Context) error
	if cfg.Tracing.Enabled {
		var err error
		tracingShutdown, err = observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			Environment: cfg.Tracing.Environment,
			ServiceName: cfg.Tracing.ServiceName,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	g, embedder := NewGenkit(ctx, cfg)

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

	writer, err := queue.NewWriter(queueStore, cfg.DedupThreshold, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating queue writer: %w", err)
	}

	web, err := pipeline.NewGeminiWebSearcher(ctx, cfg.ModelName, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating web searcher: %w", err)
	}

	svc, err := pipeline.New(g, cfg.ModelName, knowledgeStore, writer, web,
		pipeline.Config{
			RetrievalThreshold: cfg.RetrievalThreshold,
			RetrievalLimit:     cfg.RetrievalLimit,
		}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	// Register the flow so the pipeline shows up in Genkit tracing/DevUI.
	pipeline.NewFlow(g, svc)

	srv, err := api.NewServer(api.ServerConfig{
		Logger:         logger,
		Answerer:       svc,
		KnowledgeStore: knowledgeStore,
		QueueStore:     queueStore,
		Pool:           pool,
		APIToken:       cfg.APIToken,
		TrustProxy:     cfg.TrustProxy,
		RateRPS:        cfg.RateLimitRPS,
		RateBurst:      cfg.RateLimitBurst,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating server: %w", err)
	}

	return &App{
		Config:          cfg,
		Logger:          logger,
		Pool:            pool,
		Genkit:          g,
		Knowledge:       knowledgeStore,
		Queue:           queueStore,
		Pipeline:        svc,
		Server:          srv,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Close waits for detached queue captures, closes the pool, and flushes
// tracing.
func (a *App) Close(ctx context.Context) {
	a.Pipeline.Wait()
	a.Pool.Close()
	if a.tracingShutdown != nil {
		if err := a.tracingShutdown(ctx); err != nil {
			a.Logger.Warn("tracing shutdown failed", "error", err)
		}
	}
}

// NewGenkit initializes Genkit with the Google AI plugin and returns the
// instance plus the configured embedder.
func NewGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, ai.Embedder) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	return g, embedder
}

// NewPool runs migrations and opens a configured pgx pool, verifying
// connectivity before returning.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
