package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a review-queue entry.
type Status string

const (
	// StatusPending marks a question awaiting human review.
	StatusPending Status = "pending"

	// StatusResolved marks a question promoted to a knowledge entry.
	StatusResolved Status = "resolved"
)

// Entry is an unanswered question awaiting review. Pending entries are
// deduplicated semantically at insert time; see Writer.
type Entry struct {
	ID         uuid.UUID
	Question   string
	Status     Status
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
