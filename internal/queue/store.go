// Package queue manages the human-review queue for questions the
// knowledge base could not answer.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var (
	// ErrNotFound indicates the requested queue entry does not exist.
	ErrNotFound = errors.New("queue entry not found")

	// ErrAlreadyResolved indicates the entry was already promoted.
	ErrAlreadyResolved = errors.New("queue entry already resolved")
)

// entryCols is the standard SELECT column list for scanning entries.
const entryCols = `id, question, status, created_at, resolved_at`

// Store manages review-queue entries backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a queue Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// NearestPending returns the highest cosine similarity between the given
// vector and any pending queue entry. found is false when the queue has
// no pending entries.
func (s *Store) NearestPending(ctx context.Context, vec pgvector.Vector) (similarity float64, found bool, err error) {
	queryErr := s.pool.QueryRow(ctx,
		`SELECT 1 - (embedding <=> $1) AS similarity
		 FROM review_queue
		 WHERE status = 'pending'
		 ORDER BY embedding <=> $1
		 LIMIT 1`,
		vec,
	).Scan(&similarity)

	switch {
	case errors.Is(queryErr, pgx.ErrNoRows):
		return 0, false, nil
	case queryErr != nil:
		return 0, false, fmt.Errorf("querying nearest pending entry: %w", queryErr)
	default:
		return similarity, true, nil
	}
}

// Insert adds a new pending entry. Byte-identical pending questions are
// dropped by the partial unique index (ON CONFLICT DO NOTHING); the
// semantic near-duplicate guard lives in Writer, not here.
func (s *Store) Insert(ctx context.Context, question string, vec pgvector.Vector) error {
	if question == "" {
		return fmt.Errorf("question is required")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO review_queue (question, embedding)
		 VALUES ($1, $2)
		 ON CONFLICT (md5(question)) WHERE status = 'pending' DO NOTHING`,
		question, vec,
	)
	if err != nil {
		return fmt.Errorf("inserting queue entry: %w", err)
	}
	return nil
}

// Get returns a queue entry by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e := &Entry{}
	err := s.pool.QueryRow(ctx,
		`SELECT `+entryCols+` FROM review_queue WHERE id = $1`, id,
	).Scan(&e.ID, &e.Question, &e.Status, &e.CreatedAt, &e.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading queue entry %s: %w", id, err)
	}
	return e, nil
}

// Resolve transitions a pending entry to resolved and stamps resolved_at.
// Returns ErrAlreadyResolved if the entry exists but is not pending.
func (s *Store) Resolve(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e := &Entry{}
	err := s.pool.QueryRow(ctx,
		`UPDATE review_queue
		 SET status = 'resolved', resolved_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+entryCols,
		id,
	).Scan(&e.ID, &e.Question, &e.Status, &e.CreatedAt, &e.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish not-found from already-resolved.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		return nil, fmt.Errorf("resolving queue entry %s: %w", id, err)
	}

	s.logger.Debug("resolved queue entry", "id", id)
	return e, nil
}

// ListPending returns pending entries ordered oldest first, so reviewers
// see the longest-waiting questions at the top.
func (s *Store) ListPending(ctx context.Context, limit int) ([]Entry, error) {
	const maxListLimit = 1000
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", maxListLimit, limit)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+entryCols+`
		 FROM review_queue
		 WHERE status = 'pending'
		 ORDER BY created_at ASC, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Question, &e.Status, &e.CreatedAt, &e.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scanning queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating queue entries: %w", err)
	}
	return entries, nil
}
