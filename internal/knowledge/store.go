// Package knowledge manages the question/answer knowledge base backed by
// PostgreSQL + pgvector.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// Operation timeouts for external calls.
const (
	// EmbedTimeout bounds a single embedding call.
	EmbedTimeout = 15 * time.Second

	// SearchTimeout bounds a vector similarity query.
	SearchTimeout = 10 * time.Second
)

// ErrNotFound indicates the requested knowledge entry does not exist.
var ErrNotFound = errors.New("knowledge entry not found")

// entryCols is the standard SELECT column list for scanEntries.
const entryCols = `id, question, answer, created_at, updated_at`

// Store manages knowledge entries with vector search.
//
// All embeddings, for writes and for retrieval queries alike, go through
// EmbedQuestion, so stored vectors and query vectors are always produced
// the same way. A mismatch here would silently degrade recall.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a knowledge Store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// EmbedQuestion generates the vector embedding for a question.
// This is the only embedding path in the system; both the write path
// (Add/Update) and the retrieval path use it identically.
func (s *Store) EmbedQuestion(ctx context.Context, question string) (pgvector.Vector, error) {
	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	dim := VectorDimension
	resp, err := s.embedder.Embed(embedCtx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(question, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding question: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Add embeds the question and inserts a new knowledge entry.
func (s *Store) Add(ctx context.Context, question, answer string) (*Entry, error) {
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if answer == "" {
		return nil, fmt.Errorf("answer is required")
	}

	vec, err := s.EmbedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}

	entry := &Entry{}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO knowledge_entries (question, answer, embedding)
		 VALUES ($1, $2, $3)
		 RETURNING `+entryCols,
		question, answer, vec,
	).Scan(&entry.ID, &entry.Question, &entry.Answer, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting knowledge entry: %w", err)
	}

	s.logger.Debug("added knowledge entry", "id", entry.ID, "question_length", len(question))
	return entry, nil
}

// Update replaces a knowledge entry's question and answer. The embedding
// is always regenerated from the (possibly unchanged) question text so it
// can never drift out of sync with the question.
func (s *Store) Update(ctx context.Context, id uuid.UUID, question, answer string) (*Entry, error) {
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if answer == "" {
		return nil, fmt.Errorf("answer is required")
	}

	vec, err := s.EmbedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}

	entry := &Entry{}
	err = s.pool.QueryRow(ctx,
		`UPDATE knowledge_entries
		 SET question = $1, answer = $2, embedding = $3, updated_at = now()
		 WHERE id = $4
		 RETURNING `+entryCols,
		question, answer, vec, id,
	).Scan(&entry.ID, &entry.Question, &entry.Answer, &entry.CreatedAt, &entry.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating knowledge entry %s: %w", id, err)
	}

	s.logger.Debug("updated knowledge entry", "id", entry.ID)
	return entry, nil
}

// Search finds knowledge entries whose question embedding is within the
// similarity threshold of the query vector, ordered by similarity
// descending, capped at limit. An empty result is a valid outcome,
// not an error.
func (s *Store) Search(ctx context.Context, query pgvector.Vector, threshold float64, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	queryCtx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	rows, err := s.pool.Query(queryCtx,
		`SELECT `+entryCols+`, 1 - (embedding <=> $1) AS similarity
		 FROM knowledge_entries
		 WHERE 1 - (embedding <=> $1) >= $2
		 ORDER BY embedding <=> $1, id
		 LIMIT $3`,
		query, threshold, limit,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("searching knowledge entries: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(
			&m.Entry.ID, &m.Entry.Question, &m.Entry.Answer,
			&m.Entry.CreatedAt, &m.Entry.UpdatedAt, &m.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning knowledge match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating knowledge matches: %w", err)
	}

	return matches, nil
}

// Delete removes a knowledge entry by ID.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM knowledge_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting knowledge entry %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Debug("deleted knowledge entry", "id", id)
	return nil
}

// List returns knowledge entries ordered by creation time (newest first).
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	const maxListLimit = 1000
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", maxListLimit, limit)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+entryCols+`
		 FROM knowledge_entries
		 ORDER BY created_at DESC, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning knowledge entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating knowledge entries: %w", err)
	}
	return entries, nil
}
