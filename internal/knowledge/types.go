package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding dimensionality stored in pgvector.
// gemini-embedding-001 is truncated to this size via OutputDimensionality;
// must match vector(768) in the schema.
const VectorDimension int32 = 768

// Entry is a stored question/answer pair, treated as verified truth.
// The embedding is generated from the question text only and is
// regenerated whenever the question changes.
type Entry struct {
	ID        uuid.UUID
	Question  string
	Answer    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Match is a single retrieval result with its cosine similarity in [0, 1].
// Matches are ephemeral; they exist only for the duration of a request.
type Match struct {
	Entry      Entry
	Similarity float64
}
