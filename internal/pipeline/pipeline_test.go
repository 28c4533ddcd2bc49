package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/goleak"

	"github.com/answerdesk/answerdesk/internal/knowledge"
	"github.com/answerdesk/answerdesk/internal/testutil"
)

const testDim = 8

// goleakOptions returns standard goleak options shared by leak-checked
// tests in this package.
func goleakOptions() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*http2clientConnReadLoop).run"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	}
}

// fakeRetriever returns canned embeddings and matches.
type fakeRetriever struct {
	vec       pgvector.Vector
	matches   []knowledge.Match
	embedErr  error
	searchErr error

	mu       sync.Mutex
	searches int
}

func (f *fakeRetriever) EmbedQuestion(_ context.Context, _ string) (pgvector.Vector, error) {
	if f.embedErr != nil {
		return pgvector.Vector{}, f.embedErr
	}
	return f.vec, nil
}

func (f *fakeRetriever) Search(_ context.Context, _ pgvector.Vector, _ float64, _ int) ([]knowledge.Match, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}

// fakeEnqueuer records capture calls.
type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []enqueueCall
}

type enqueueCall struct {
	question string
	vec      pgvector.Vector
}

func (f *fakeEnqueuer) EnqueueIfNovel(_ context.Context, question string, vec pgvector.Vector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enqueueCall{question: question, vec: vec})
}

func (f *fakeEnqueuer) Calls() []enqueueCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]enqueueCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

// fakeWebSearcher streams canned chunks and returns canned citations.
type fakeWebSearcher struct {
	chunks    []string
	citations []Citation
	err       error
}

func (f *fakeWebSearcher) StreamAnswer(ctx context.Context, _ string, stream StreamFunc) ([]Citation, error) {
	for _, c := range f.chunks {
		if err := stream(ctx, c); err != nil {
			return nil, err
		}
	}
	return f.citations, f.err
}

type testDeps struct {
	ai        *testutil.MockAISetup
	retriever *fakeRetriever
	enqueuer  *fakeEnqueuer
	web       *fakeWebSearcher
	svc       *Service
}

func newTestService(t *testing.T, retriever *fakeRetriever, web *fakeWebSearcher) *testDeps {
	t.Helper()

	setup := testutil.SetupMockAI(t, testDim)
	enqueuer := &fakeEnqueuer{}

	svc, err := New(setup.Genkit, "mock/test-model", retriever, enqueuer, web,
		Config{RetrievalThreshold: 0.50, RetrievalLimit: 5},
		testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	return &testDeps{
		ai:        setup,
		retriever: retriever,
		enqueuer:  enqueuer,
		web:       web,
		svc:       svc,
	}
}

func matchFor(answer string, similarity float64) knowledge.Match {
	return knowledge.Match{
		Entry:      knowledge.Entry{Question: "stored question", Answer: answer},
		Similarity: similarity,
	}
}

// collectStream returns a StreamFunc appending to chunks.
func collectStream(chunks *[]string) StreamFunc {
	return func(_ context.Context, chunk string) error {
		*chunks = append(*chunks, chunk)
		return nil
	}
}

func TestNew_Validation(t *testing.T) {
	setup := testutil.SetupMockAI(t, testDim)
	retriever := &fakeRetriever{}
	enqueuer := &fakeEnqueuer{}
	web := &fakeWebSearcher{}
	validCfg := Config{RetrievalThreshold: 0.50, RetrievalLimit: 5}

	tests := []struct {
		name    string
		mutate  func() (*Service, error)
		wantSub string
	}{
		{
			name: "nil genkit",
			mutate: func() (*Service, error) {
				return New(nil, "m", retriever, enqueuer, web, validCfg, nil)
			},
			wantSub: "genkit instance is required",
		},
		{
			name: "empty model",
			mutate: func() (*Service, error) {
				return New(setup.Genkit, "", retriever, enqueuer, web, validCfg, nil)
			},
			wantSub: "model name is required",
		},
		{
			name: "nil retriever",
			mutate: func() (*Service, error) {
				return New(setup.Genkit, "m", nil, enqueuer, web, validCfg, nil)
			},
			wantSub: "retriever is required",
		},
		{
			name: "bad threshold",
			mutate: func() (*Service, error) {
				return New(setup.Genkit, "m", retriever, enqueuer, web,
					Config{RetrievalThreshold: 1.5, RetrievalLimit: 5}, nil)
			},
			wantSub: "retrieval threshold",
		},
		{
			name: "bad limit",
			mutate: func() (*Service, error) {
				return New(setup.Genkit, "m", retriever, enqueuer, web,
					Config{RetrievalThreshold: 0.5, RetrievalLimit: 0}, nil)
			},
			wantSub: "retrieval limit",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.mutate()
			if err == nil {
				t.Fatal("New() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("New() error = %q, want contains %q", err, tt.wantSub)
			}
		})
	}
}

func TestJudge_EmptyChunks_NoModelCall(t *testing.T) {
	deps := newTestService(t, &fakeRetriever{}, &fakeWebSearcher{})

	if deps.svc.judge(context.Background(), "any question", nil) {
		t.Error("judge() with empty chunks = true, want false")
	}
	if calls := deps.ai.LLM.Calls(); len(calls) != 0 {
		t.Errorf("judge() with empty chunks made %d model calls, want 0", len(calls))
	}
}

func TestJudge_DecisionRule(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  bool
	}{
		{name: "clear yes", reply: "YES", want: true},
		{name: "lowercase yes", reply: "yes", want: true},
		{name: "clear no", reply: "NO", want: false},
		{name: "ambiguous yes and no", reply: "YES, but also NO", want: false},
		{name: "empty reply", reply: "", want: false},
		{name: "unrelated reply", reply: "maybe", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestService(t, &fakeRetriever{}, &fakeWebSearcher{})
			deps.ai.LLM.AddResponse("does the context above", tt.reply)

			got := deps.svc.judge(context.Background(), "is there a refund policy", []string{"refunds within 30 days"})
			if got != tt.want {
				t.Errorf("judge() with reply %q = %v, want %v", tt.reply, got, tt.want)
			}
		})
	}
}

func TestJudge_CallFailure_FailsClosed(t *testing.T) {
	deps := newTestService(t, &fakeRetriever{}, &fakeWebSearcher{})
	deps.ai.LLM.SetError(errors.New("model unavailable"))

	if deps.svc.judge(context.Background(), "question", []string{"chunk"}) {
		t.Error("judge() on call failure = true, want false (fail closed)")
	}
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	deps := newTestService(t, &fakeRetriever{}, &fakeWebSearcher{})

	var chunks []string
	err := deps.svc.Answer(context.Background(), "   ", collectStream(&chunks))
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("Answer(blank) error = %v, want ErrEmptyQuestion", err)
	}
	if len(chunks) != 0 {
		t.Errorf("Answer(blank) streamed %d chunks, want 0", len(chunks))
	}
}

func TestAnswer_EmbedFailure_HardError(t *testing.T) {
	retriever := &fakeRetriever{embedErr: errors.New("embedding service down")}
	deps := newTestService(t, retriever, &fakeWebSearcher{})

	var chunks []string
	err := deps.svc.Answer(context.Background(), "question", collectStream(&chunks))
	if !errors.Is(err, ErrRetrievalFailed) {
		t.Errorf("Answer() error = %v, want ErrRetrievalFailed", err)
	}
	if len(chunks) != 0 {
		t.Errorf("Answer() streamed %d chunks before hard error, want 0", len(chunks))
	}
}

func TestAnswer_SearchFailure_HardError(t *testing.T) {
	retriever := &fakeRetriever{searchErr: errors.New("database down")}
	deps := newTestService(t, retriever, &fakeWebSearcher{})

	err := deps.svc.Answer(context.Background(), "question", collectStream(&[]string{}))
	if !errors.Is(err, ErrRetrievalFailed) {
		t.Errorf("Answer() error = %v, want ErrRetrievalFailed", err)
	}
}

func TestAnswer_GroundedPath(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	retriever := &fakeRetriever{
		vec:     pgvector.NewVector(make([]float32, testDim)),
		matches: []knowledge.Match{matchFor("Returns are accepted within 30 days.", 0.92)},
	}
	deps := newTestService(t, retriever, &fakeWebSearcher{})
	deps.ai.LLM.AddResponse("does the context above", "YES")
	deps.ai.LLM.AddStreamResponse("reference answers", "You can return items ", "within 30 days.")

	var chunks []string
	err := deps.svc.Answer(context.Background(), "What is your return policy?", collectStream(&chunks))
	if err != nil {
		t.Fatalf("Answer() unexpected error: %v", err)
	}
	deps.svc.Wait()

	if len(chunks) < 2 {
		t.Fatalf("Answer() streamed %d chunks, want at least answer + trailer", len(chunks))
	}

	// The trailer must be the terminal element, with the raw generation
	// stream verbatim before it.
	last := chunks[len(chunks)-1]
	if last != knowledgeBaseTrailer {
		t.Errorf("last chunk = %q, want knowledge base trailer", last)
	}
	body := strings.Join(chunks[:len(chunks)-1], "")
	if body != "You can return items within 30 days." {
		t.Errorf("streamed body = %q, want verbatim generation output", body)
	}

	// Grounded answers never enqueue for review.
	if calls := deps.enqueuer.Calls(); len(calls) != 0 {
		t.Errorf("grounded path made %d enqueue calls, want 0", len(calls))
	}
}

func TestAnswer_WebFallback_ZeroMatches(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	vec := pgvector.NewVector([]float32{1, 0, 0, 0, 0, 0, 0, 0})
	retriever := &fakeRetriever{vec: vec}
	web := &fakeWebSearcher{
		chunks: []string{"According to recent sources, ", "the policy changed."},
		citations: []Citation{
			{Title: "Policy News", URL: "https://example.com/policy"},
		},
	}
	deps := newTestService(t, retriever, web)

	var chunks []string
	err := deps.svc.Answer(context.Background(), "What is your return policy?", collectStream(&chunks))
	if err != nil {
		t.Fatalf("Answer() unexpected error: %v", err)
	}
	deps.svc.Wait()

	// Zero matches: the judge must not call the model at all.
	if calls := deps.ai.LLM.Calls(); len(calls) != 0 {
		t.Errorf("zero-match path made %d model calls, want 0", len(calls))
	}

	last := chunks[len(chunks)-1]
	if !strings.Contains(last, "Sources:") || !strings.Contains(last, "1. Policy News (https://example.com/policy)") {
		t.Errorf("last chunk = %q, want numbered source footer", last)
	}
	body := strings.Join(chunks[:len(chunks)-1], "")
	if body != "According to recent sources, the policy changed." {
		t.Errorf("streamed body = %q, want verbatim web output", body)
	}

	// Exactly one background enqueue, with the already-computed embedding.
	calls := deps.enqueuer.Calls()
	if len(calls) != 1 {
		t.Fatalf("web path made %d enqueue calls, want 1", len(calls))
	}
	if calls[0].question != "What is your return policy?" {
		t.Errorf("enqueued question = %q, want original question", calls[0].question)
	}
	if got := calls[0].vec.Slice(); got[0] != 1 {
		t.Errorf("enqueued vec = %v, want the retrieval embedding", got)
	}
}

func TestAnswer_WebFallback_NoCitations(t *testing.T) {
	retriever := &fakeRetriever{vec: pgvector.NewVector(make([]float32, testDim))}
	web := &fakeWebSearcher{chunks: []string{"answer text"}}
	deps := newTestService(t, retriever, web)

	var chunks []string
	if err := deps.svc.Answer(context.Background(), "question", collectStream(&chunks)); err != nil {
		t.Fatalf("Answer() unexpected error: %v", err)
	}
	deps.svc.Wait()

	last := chunks[len(chunks)-1]
	if last != genericWebTrailer {
		t.Errorf("last chunk = %q, want generic web trailer", last)
	}
}

func TestAnswer_JudgeNotRelevant_FallsBack(t *testing.T) {
	retriever := &fakeRetriever{
		vec:     pgvector.NewVector(make([]float32, testDim)),
		matches: []knowledge.Match{matchFor("unrelated answer", 0.55)},
	}
	web := &fakeWebSearcher{chunks: []string{"web answer"}}
	deps := newTestService(t, retriever, web)
	deps.ai.LLM.AddResponse("does the context above", "NO")

	var chunks []string
	if err := deps.svc.Answer(context.Background(), "question", collectStream(&chunks)); err != nil {
		t.Fatalf("Answer() unexpected error: %v", err)
	}
	deps.svc.Wait()

	if last := chunks[len(chunks)-1]; last != genericWebTrailer {
		t.Errorf("last chunk = %q, want web trailer after NotRelevant verdict", last)
	}
	if calls := deps.enqueuer.Calls(); len(calls) != 1 {
		t.Errorf("NotRelevant path made %d enqueue calls, want 1", len(calls))
	}
}

func TestStreamGrounded_GenerationFailure_FailSoft(t *testing.T) {
	deps := newTestService(t, &fakeRetriever{}, &fakeWebSearcher{})
	deps.ai.LLM.SetError(errors.New("model exploded"))

	var chunks []string
	err := deps.svc.streamGrounded(context.Background(), "question", []string{"chunk"}, collectStream(&chunks))
	if err != nil {
		t.Fatalf("streamGrounded() error = %v, want nil (fail soft)", err)
	}
	if len(chunks) != 1 || chunks[0] != generationFailedMessage {
		t.Errorf("streamGrounded() chunks = %v, want single failure message", chunks)
	}
}

func TestStreamWeb_GenerationFailure_FailSoft(t *testing.T) {
	retriever := &fakeRetriever{vec: pgvector.NewVector(make([]float32, testDim))}
	web := &fakeWebSearcher{
		chunks: []string{"partial "},
		err:    errors.New("search backend down"),
	}
	deps := newTestService(t, retriever, web)

	var chunks []string
	err := deps.svc.Answer(context.Background(), "question", collectStream(&chunks))
	if err != nil {
		t.Fatalf("Answer() error = %v, want nil (fail soft)", err)
	}
	deps.svc.Wait()

	if last := chunks[len(chunks)-1]; last != generationFailedMessage {
		t.Errorf("last chunk = %q, want failure message", last)
	}
}

func TestAnswer_StreamCallbackError_Propagates(t *testing.T) {
	retriever := &fakeRetriever{vec: pgvector.NewVector(make([]float32, testDim))}
	web := &fakeWebSearcher{chunks: []string{"chunk1", "chunk2"}}
	deps := newTestService(t, retriever, web)

	wantErr := errors.New("client disconnected")
	stream := func(_ context.Context, _ string) error {
		return wantErr
	}

	err := deps.svc.Answer(context.Background(), "question", stream)
	if !errors.Is(err, wantErr) {
		t.Errorf("Answer() error = %v, want callback error to propagate", err)
	}
	deps.svc.Wait()
}
