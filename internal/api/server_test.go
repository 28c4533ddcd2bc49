package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerdesk/answerdesk/internal/knowledge"
	"github.com/answerdesk/answerdesk/internal/pipeline"
	"github.com/answerdesk/answerdesk/internal/queue"
	"github.com/answerdesk/answerdesk/internal/testutil"
)

const testToken = "test-token"

// fakeAnswerer streams canned chunks or fails with a canned error.
type fakeAnswerer struct {
	chunks []string
	err    error

	mu          sync.Mutex
	gotQuestion string
}

func (f *fakeAnswerer) Answer(ctx context.Context, question string, stream pipeline.StreamFunc) error {
	f.mu.Lock()
	f.gotQuestion = question
	f.mu.Unlock()

	for _, c := range f.chunks {
		if err := stream(ctx, c); err != nil {
			return err
		}
	}
	return f.err
}

// fakeKnowledgeStore is an in-memory KnowledgeStore.
type fakeKnowledgeStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]knowledge.Entry
	addErr  error
}

func newFakeKnowledgeStore() *fakeKnowledgeStore {
	return &fakeKnowledgeStore{entries: make(map[uuid.UUID]knowledge.Entry)}
}

func (f *fakeKnowledgeStore) Add(_ context.Context, question, answer string) (*knowledge.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return nil, f.addErr
	}
	now := time.Now()
	e := knowledge.Entry{ID: uuid.New(), Question: question, Answer: answer, CreatedAt: now, UpdatedAt: now}
	f.entries[e.ID] = e
	return &e, nil
}

func (f *fakeKnowledgeStore) Update(_ context.Context, id uuid.UUID, question, answer string) (*knowledge.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, knowledge.ErrNotFound
	}
	e.Question = question
	e.Answer = answer
	e.UpdatedAt = time.Now()
	f.entries[id] = e
	return &e, nil
}

func (f *fakeKnowledgeStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[id]; !ok {
		return knowledge.ErrNotFound
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeKnowledgeStore) List(_ context.Context, _ int) ([]knowledge.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]knowledge.Entry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// fakeQueueStore is an in-memory QueueStore.
type fakeQueueStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*queue.Entry
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{entries: make(map[uuid.UUID]*queue.Entry)}
}

func (f *fakeQueueStore) addPending(question string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &queue.Entry{ID: uuid.New(), Question: question, Status: queue.StatusPending, CreatedAt: time.Now()}
	f.entries[e.ID] = e
	return e.ID
}

func (f *fakeQueueStore) ListPending(_ context.Context, _ int) ([]queue.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []queue.Entry
	for _, e := range f.entries {
		if e.Status == queue.StatusPending {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeQueueStore) Resolve(_ context.Context, id uuid.UUID) (*queue.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, queue.ErrNotFound
	}
	if e.Status != queue.StatusPending {
		return nil, queue.ErrAlreadyResolved
	}
	now := time.Now()
	e.Status = queue.StatusResolved
	e.ResolvedAt = &now
	cp := *e
	return &cp, nil
}

type serverFixture struct {
	answerer  *fakeAnswerer
	knowledge *fakeKnowledgeStore
	queue     *fakeQueueStore
	srv       *Server
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()

	f := &serverFixture{
		answerer:  &fakeAnswerer{},
		knowledge: newFakeKnowledgeStore(),
		queue:     newFakeQueueStore(),
	}

	srv, err := NewServer(ServerConfig{
		Logger:         testutil.DiscardLogger(),
		Answerer:       f.answerer,
		KnowledgeStore: f.knowledge,
		QueueStore:     f.queue,
		APIToken:       testToken,
		RateBurst:      1000,
	})
	require.NoError(t, err)
	f.srv = srv
	return f
}

// do executes an authenticated request against the server.
func (f *serverFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	r.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, r)
	return w
}

func TestNewServer_Validation(t *testing.T) {
	valid := ServerConfig{
		Answerer:       &fakeAnswerer{},
		KnowledgeStore: newFakeKnowledgeStore(),
		QueueStore:     newFakeQueueStore(),
		APIToken:       testToken,
	}

	tests := []struct {
		name   string
		mutate func(c ServerConfig) ServerConfig
	}{
		{"nil answerer", func(c ServerConfig) ServerConfig { c.Answerer = nil; return c }},
		{"nil knowledge store", func(c ServerConfig) ServerConfig { c.KnowledgeStore = nil; return c }},
		{"nil queue store", func(c ServerConfig) ServerConfig { c.QueueStore = nil; return c }},
		{"empty token", func(c ServerConfig) ServerConfig { c.APIToken = ""; return c }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.mutate(valid))
			assert.Error(t, err)
		})
	}
}

func TestAuth_RejectsBeforeHandlers(t *testing.T) {
	f := newTestServer(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong token", "Bearer wrong-token"},
		{"malformed scheme", "Basic " + testToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"q"}`))
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			f.srv.Handler().ServeHTTP(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Empty(t, f.answerer.gotQuestion, "pipeline must not run for unauthorized requests")
		})
	}
}

func TestHealth_Unauthenticated(t *testing.T) {
	f := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code, "GET %s without auth", path)
	}
}

func TestRateLimit(t *testing.T) {
	f := &serverFixture{
		answerer:  &fakeAnswerer{},
		knowledge: newFakeKnowledgeStore(),
		queue:     newFakeQueueStore(),
	}
	srv, err := NewServer(ServerConfig{
		Logger:         testutil.DiscardLogger(),
		Answerer:       f.answerer,
		KnowledgeStore: f.knowledge,
		QueueStore:     f.queue,
		APIToken:       testToken,
		RateRPS:        0.001,
		RateBurst:      2,
	})
	require.NoError(t, err)
	f.srv = srv

	codes := make([]int, 0, 3)
	for range 3 {
		w := f.do(http.MethodGet, "/api/knowledge", "")
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}

