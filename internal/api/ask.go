package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/answerdesk/answerdesk/internal/pipeline"
)

// maxRequestBytes caps JSON request bodies across the API.
const maxRequestBytes = 1 << 20

// Answerer is the pipeline surface the ask endpoint needs. Satisfied by
// *pipeline.Service.
type Answerer interface {
	Answer(ctx context.Context, question string, stream pipeline.StreamFunc) error
}

type askHandler struct {
	svc    Answerer
	logger *slog.Logger
}

type askRequest struct {
	Question string `json:"question"`
}

// ask handles POST /api/ask. Successful answers are a chunked text/plain
// stream; failures before the first chunk are a JSON error envelope.
// Callers branch on Content-Type.
func (h *askHandler) ask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", h.logger)
		return
	}

	flusher, canFlush := w.(http.Flusher)
	started := false
	stream := func(_ context.Context, chunk string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	}

	err := h.svc.Answer(r.Context(), req.Question, stream)
	if err == nil {
		return
	}
	if started {
		// Headers are gone; nothing structured can be sent anymore.
		h.logger.Debug("answer stream aborted", "error", err)
		return
	}

	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "missing_question", "question is required", h.logger)
	case errors.Is(err, pipeline.ErrRetrievalFailed):
		h.logger.Error("knowledge retrieval failed", "error", err)
		writeError(w, http.StatusBadGateway, "retrieval_failed", "could not search the knowledge base", h.logger)
	default:
		h.logger.Error("answer pipeline failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}
