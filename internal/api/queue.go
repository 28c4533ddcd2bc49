package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/answerdesk/answerdesk/internal/queue"
)

// QueueStore is the store surface the queue endpoints need. Satisfied by
// *queue.Store.
type QueueStore interface {
	ListPending(ctx context.Context, limit int) ([]queue.Entry, error)
	Resolve(ctx context.Context, id uuid.UUID) (*queue.Entry, error)
}

type queueHandler struct {
	store     QueueStore
	knowledge KnowledgeStore
	logger    *slog.Logger
}

type queueEntryResponse struct {
	ID         uuid.UUID  `json:"id"`
	Question   string     `json:"question"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type resolveRequest struct {
	Answer string `json:"answer"`
}

type resolveResponse struct {
	Entry     queueEntryResponse `json:"entry"`
	Knowledge knowledgeResponse  `json:"knowledge"`
}

func toQueueEntryResponse(e *queue.Entry) queueEntryResponse {
	return queueEntryResponse{
		ID:         e.ID,
		Question:   e.Question,
		Status:     string(e.Status),
		CreatedAt:  e.CreatedAt,
		ResolvedAt: e.ResolvedAt,
	}
}

// listPending handles GET /api/queue.
func (h *queueHandler) listPending(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListPending(r.Context(), defaultListLimit)
	if err != nil {
		h.logger.Error("listing pending queue entries", "error", err)
		writeError(w, http.StatusInternalServerError, "store_failed", "could not list queue entries", h.logger)
		return
	}

	out := make([]queueEntryResponse, len(entries))
	for i := range entries {
		out[i] = toQueueEntryResponse(&entries[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out}, h.logger)
}

// resolve handles POST /api/queue/{id}/resolve: marks the entry resolved
// and promotes it to a knowledge entry with the supplied answer.
func (h *queueHandler) resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid entry ID", h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", h.logger)
		return
	}
	if req.Answer == "" {
		writeError(w, http.StatusBadRequest, "missing_answer", "answer is required", h.logger)
		return
	}

	entry, err := h.store.Resolve(r.Context(), id)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "queue entry not found", h.logger)
		return
	case errors.Is(err, queue.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "already_resolved", "queue entry already resolved", h.logger)
		return
	case err != nil:
		h.logger.Error("resolving queue entry", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "store_failed", "could not resolve queue entry", h.logger)
		return
	}

	promoted, err := h.knowledge.Add(r.Context(), entry.Question, req.Answer)
	if err != nil {
		// The entry is already resolved; the promotion can be retried by
		// re-adding the knowledge entry directly.
		h.logger.Error("promoting queue entry to knowledge", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "promotion_failed", "entry resolved but knowledge insert failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		Entry:     toQueueEntryResponse(entry),
		Knowledge: toKnowledgeResponse(promoted),
	}, h.logger)
}
