// Package pipeline implements the tiered answer-resolution flow: embed the
// question, search the knowledge base, judge whether the retrieved answers
// cover it, then stream either a grounded answer or a web-search fallback
// while capturing unanswered questions for human review.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/genkit"
	"github.com/pgvector/pgvector-go"

	"github.com/answerdesk/answerdesk/internal/knowledge"
)

var (
	// ErrEmptyQuestion indicates a blank question after trimming.
	ErrEmptyQuestion = errors.New("question is required")

	// ErrRetrievalFailed indicates the embedding or vector-search step
	// failed. Nothing has been streamed when this is returned, so callers
	// can still send a structured error response.
	ErrRetrievalFailed = errors.New("knowledge retrieval failed")
)

// StreamFunc receives answer text incrementally, in order. Returning an
// error stops the stream; the pipeline treats that as the caller going
// away, not as a generation failure.
type StreamFunc func(ctx context.Context, chunk string) error

// Citation is a web source reference collected alongside generated text.
type Citation struct {
	Title string
	URL   string
}

// Retriever embeds questions and searches the knowledge base. Satisfied
// by *knowledge.Store.
type Retriever interface {
	EmbedQuestion(ctx context.Context, question string) (pgvector.Vector, error)
	Search(ctx context.Context, query pgvector.Vector, threshold float64, limit int) ([]knowledge.Match, error)
}

// Enqueuer captures unanswered questions for review. Satisfied by
// *queue.Writer. Implementations are best-effort and must not fail loudly.
type Enqueuer interface {
	EnqueueIfNovel(ctx context.Context, question string, vec pgvector.Vector)
}

// WebSearcher streams a search-grounded answer and returns the citations
// it saw, in emission order, without deduplication.
type WebSearcher interface {
	StreamAnswer(ctx context.Context, question string, stream StreamFunc) ([]Citation, error)
}

// Config carries the pipeline's tuning knobs. The retrieval threshold has
// a visible history of tuning; treat it as configuration, never a
// constant baked into call sites.
type Config struct {
	RetrievalThreshold float64
	RetrievalLimit     int
}

// Service is the pipeline orchestrator. Each Answer call runs an
// independent state machine; the Service itself holds no per-request
// state, so concurrent calls need no coordination.
type Service struct {
	g         *genkit.Genkit
	modelName string
	retriever Retriever
	enqueuer  Enqueuer
	web       WebSearcher
	cfg       Config
	logger    *slog.Logger

	// Tracks detached queue captures so shutdown can wait for them.
	enqueues sync.WaitGroup
}

// New creates a pipeline Service. All collaborators are injected; the
// Service never constructs clients itself.
func New(g *genkit.Genkit, modelName string, retriever Retriever, enqueuer Enqueuer, web WebSearcher, cfg Config, logger *slog.Logger) (*Service, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("enqueuer is required")
	}
	if web == nil {
		return nil, fmt.Errorf("web searcher is required")
	}
	if cfg.RetrievalThreshold <= 0 || cfg.RetrievalThreshold > 1 {
		return nil, fmt.Errorf("retrieval threshold must be in (0, 1], got %g", cfg.RetrievalThreshold)
	}
	if cfg.RetrievalLimit <= 0 {
		return nil, fmt.Errorf("retrieval limit must be positive, got %d", cfg.RetrievalLimit)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		g:         g,
		modelName: modelName,
		retriever: retriever,
		enqueuer:  enqueuer,
		web:       web,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Answer resolves a question and streams the answer through stream.
//
// Embedding or search failure returns ErrRetrievalFailed before anything
// is streamed. Once streaming starts, generation failures are converted
// to user-facing text inside the stream and Answer returns nil; the only
// errors returned after that point come from the stream callback itself.
func (s *Service) Answer(ctx context.Context, question string, stream StreamFunc) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrEmptyQuestion
	}
	if stream == nil {
		return fmt.Errorf("stream callback is required")
	}

	vec, err := s.retriever.EmbedQuestion(ctx, question)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}

	matches, err := s.retriever.Search(ctx, vec, s.cfg.RetrievalThreshold, s.cfg.RetrievalLimit)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}

	chunks := make([]string, len(matches))
	for i, m := range matches {
		chunks[i] = m.Entry.Answer
	}

	if s.judge(ctx, question, chunks) {
		s.logger.Info("answering from knowledge base",
			"matches", len(matches), "top_similarity", topSimilarity(matches))
		return s.streamGrounded(ctx, question, chunks, stream)
	}

	s.logger.Info("falling back to web search", "matches", len(matches))
	s.spawnEnqueue(ctx, question, vec)
	return s.streamWeb(ctx, question, stream)
}

// spawnEnqueue fires the queue capture without waiting for it. The
// detached context deliberately survives the request: a client hanging up
// mid-answer must not lose the question for reviewers.
func (s *Service) spawnEnqueue(ctx context.Context, question string, vec pgvector.Vector) {
	detached := context.WithoutCancel(ctx)
	s.enqueues.Add(1)
	go func() {
		defer s.enqueues.Done()
		s.enqueuer.EnqueueIfNovel(detached, question, vec)
	}()
}

// Wait blocks until all detached queue captures have finished. Intended
// for shutdown and tests.
func (s *Service) Wait() {
	s.enqueues.Wait()
}

func topSimilarity(matches []knowledge.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	return matches[0].Similarity
}
