package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"
)

// EnqueueTimeout bounds the whole dedup-check-plus-insert sequence.
// The writer runs detached from request handling, so this is the only
// thing keeping a stuck connection from leaking goroutines.
const EnqueueTimeout = 10 * time.Second

// Writer inserts unanswered questions into the review queue, skipping
// questions that are near-duplicates of an already-pending entry.
//
// The writer is best-effort by design: queue capture must never affect
// the answer a user receives, so every failure is logged and swallowed.
type Writer struct {
	store     *Store
	threshold float64
	logger    *slog.Logger
}

// NewWriter creates a Writer. threshold is the cosine similarity at or
// above which a pending entry counts as a duplicate.
func NewWriter(store *Store, threshold float64, logger *slog.Logger) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1], got %g", threshold)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, threshold: threshold, logger: logger}, nil
}

// EnqueueIfNovel records an unanswered question unless a pending entry
// is already similar enough. The embedding is the same vector used for
// knowledge retrieval, so the question is never re-embedded here.
//
// Returns nothing: callers fire and forget. Two concurrent calls with
// similar questions may both pass the dedup check and insert twice;
// that costs a reviewer one extra glance and is accepted rather than
// serialized.
func (w *Writer) EnqueueIfNovel(ctx context.Context, question string, vec pgvector.Vector) {
	ctx, cancel := context.WithTimeout(ctx, EnqueueTimeout)
	defer cancel()

	similarity, found, err := w.store.NearestPending(ctx, vec)
	if err != nil {
		w.logger.Warn("queue dedup check failed, skipping capture",
			"error", err, "question_length", len(question))
		return
	}
	if found && similarity >= w.threshold {
		w.logger.Debug("skipping duplicate queue entry",
			"similarity", similarity, "threshold", w.threshold)
		return
	}

	if err := w.store.Insert(ctx, question, vec); err != nil {
		w.logger.Warn("queue insert failed, question not captured",
			"error", err, "question_length", len(question))
		return
	}

	w.logger.Info("captured unanswered question for review",
		"question_length", len(question))
}
