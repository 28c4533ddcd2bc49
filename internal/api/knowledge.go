package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/answerdesk/answerdesk/internal/knowledge"
)

const defaultListLimit = 100

// KnowledgeStore is the store surface the knowledge endpoints need.
// Satisfied by *knowledge.Store.
type KnowledgeStore interface {
	Add(ctx context.Context, question, answer string) (*knowledge.Entry, error)
	Update(ctx context.Context, id uuid.UUID, question, answer string) (*knowledge.Entry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit int) ([]knowledge.Entry, error)
}

type knowledgeHandler struct {
	store  KnowledgeStore
	logger *slog.Logger
}

type knowledgeRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type knowledgeResponse struct {
	ID        uuid.UUID `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toKnowledgeResponse(e *knowledge.Entry) knowledgeResponse {
	return knowledgeResponse{
		ID:        e.ID,
		Question:  e.Question,
		Answer:    e.Answer,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// create handles POST /api/knowledge.
func (h *knowledgeHandler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}

	entry, err := h.store.Add(r.Context(), req.Question, req.Answer)
	if err != nil {
		h.logger.Error("creating knowledge entry", "error", err)
		writeError(w, http.StatusBadGateway, "store_failed", "could not store knowledge entry", h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toKnowledgeResponse(entry), h.logger)
}

// update handles PUT /api/knowledge/{id}. The embedding is regenerated
// from the submitted question text by the store.
func (h *knowledgeHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid entry ID", h.logger)
		return
	}

	req, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}

	entry, err := h.store.Update(r.Context(), id, req.Question, req.Answer)
	switch {
	case errors.Is(err, knowledge.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "knowledge entry not found", h.logger)
	case err != nil:
		h.logger.Error("updating knowledge entry", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "store_failed", "could not update knowledge entry", h.logger)
	default:
		writeJSON(w, http.StatusOK, toKnowledgeResponse(entry), h.logger)
	}
}

// remove handles DELETE /api/knowledge/{id}.
func (h *knowledgeHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid entry ID", h.logger)
		return
	}

	err = h.store.Delete(r.Context(), id)
	switch {
	case errors.Is(err, knowledge.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "knowledge entry not found", h.logger)
	case err != nil:
		h.logger.Error("deleting knowledge entry", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "store_failed", "could not delete knowledge entry", h.logger)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// list handles GET /api/knowledge.
func (h *knowledgeHandler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context(), defaultListLimit)
	if err != nil {
		h.logger.Error("listing knowledge entries", "error", err)
		writeError(w, http.StatusInternalServerError, "store_failed", "could not list knowledge entries", h.logger)
		return
	}

	out := make([]knowledgeResponse, len(entries))
	for i := range entries {
		out[i] = toKnowledgeResponse(&entries[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out}, h.logger)
}

func (h *knowledgeHandler) decodeEntry(w http.ResponseWriter, r *http.Request) (knowledgeRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req knowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", h.logger)
		return knowledgeRequest{}, false
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "missing_question", "question is required", h.logger)
		return knowledgeRequest{}, false
	}
	if req.Answer == "" {
		writeError(w, http.StatusBadRequest, "missing_answer", "answer is required", h.logger)
		return knowledgeRequest{}, false
	}
	return req, true
}
