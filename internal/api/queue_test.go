package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerdesk/answerdesk/internal/queue"
)

func TestQueueListPending(t *testing.T) {
	f := newTestServer(t)
	f.queue.addPending("unanswered question one")
	f.queue.addPending("unanswered question two")

	w := f.do(http.MethodGet, "/api/queue", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Entries []queueEntryResponse `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	for _, e := range resp.Entries {
		assert.Equal(t, string(queue.StatusPending), e.Status)
	}
}

func TestQueueResolve_PromotesToKnowledge(t *testing.T) {
	f := newTestServer(t)
	id := f.queue.addPending("How do I close my account?")

	w := f.do(http.MethodPost, "/api/queue/"+id.String()+"/resolve",
		`{"answer":"Contact support from the account settings page."}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp resolveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(queue.StatusResolved), resp.Entry.Status)
	require.NotNil(t, resp.Entry.ResolvedAt)
	assert.Equal(t, "How do I close my account?", resp.Knowledge.Question)
	assert.Equal(t, "Contact support from the account settings page.", resp.Knowledge.Answer)

	// The promoted entry is now in the knowledge store.
	entries, err := f.knowledge.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "How do I close my account?", entries[0].Question)
}

func TestQueueResolve_AlreadyResolved(t *testing.T) {
	f := newTestServer(t)
	id := f.queue.addPending("question")

	w := f.do(http.MethodPost, "/api/queue/"+id.String()+"/resolve", `{"answer":"a"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/queue/"+id.String()+"/resolve", `{"answer":"a"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestQueueResolve_NotFound(t *testing.T) {
	f := newTestServer(t)

	w := f.do(http.MethodPost, "/api/queue/"+uuid.NewString()+"/resolve", `{"answer":"a"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueResolve_Validation(t *testing.T) {
	f := newTestServer(t)
	id := f.queue.addPending("question")

	t.Run("missing answer", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/queue/"+id.String()+"/resolve", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/queue/not-a-uuid/resolve", `{"answer":"a"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
