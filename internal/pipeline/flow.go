package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
)

// Input defines the request payload for the ask flow.
type Input struct {
	Question string `json:"question"`
}

// Output defines the non-streaming response payload from the ask flow.
type Output struct {
	Answer string `json:"answer"`
}

// StreamChunk is the streaming output type for the ask flow.
type StreamChunk struct {
	Text string `json:"text"`
}

// FlowName is the registered name of the ask flow in Genkit.
const FlowName = "answerdesk/ask"

// Flow is the type alias for the pipeline's Genkit streaming flow.
type Flow = core.Flow[Input, Output, StreamChunk]

// Package-level singleton; genkit.DefineStreamingFlow panics on
// re-registration, so the flow is defined exactly once per process.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the ask flow singleton, initializing it on first call.
// Subsequent calls return the existing flow (parameters are ignored).
func NewFlow(g *genkit.Genkit, svc *Service) *Flow {
	flowOnce.Do(func() {
		flow = svc.DefineFlow(g)
	})
	return flow
}

// ResetFlowForTesting resets the flow singleton so tests can register
// with different configurations. Not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

// DefineFlow registers the pipeline as a Genkit streaming flow, giving it
// DevUI tracing and a typed streaming surface for free. Use NewFlow
// instead of calling this directly; defining the flow twice panics.
func (s *Service) DefineFlow(g *genkit.Genkit) *Flow {
	return genkit.DefineStreamingFlow(g, FlowName,
		func(ctx context.Context, input Input, streamCb func(context.Context, StreamChunk) error) (Output, error) {
			var full strings.Builder
			stream := func(ctx context.Context, chunk string) error {
				full.WriteString(chunk)
				if streamCb != nil {
					return streamCb(ctx, StreamChunk{Text: chunk})
				}
				return nil
			}

			if err := s.Answer(ctx, input.Question, stream); err != nil {
				return Output{}, err
			}
			return Output{Answer: full.String()}, nil
		},
	)
}
