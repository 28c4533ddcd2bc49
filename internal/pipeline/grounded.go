package pipeline

import (
	"context"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

const groundedSystemPrompt = `You are a helpdesk assistant. Answer the user's question using ONLY the reference answers provided. Do not use outside knowledge. Do not invent details that are not in the reference answers. Keep the tone helpful and concise.`

const groundedPrompt = `Reference answers:

%s

Question: %s`

// knowledgeBaseTrailer is appended after the grounded stream completes.
// It must be the terminal element of the stream.
const knowledgeBaseTrailer = "\n\n---\nDatabase (Internal Knowledge Base)"

// generationFailedMessage replaces the answer when generation fails.
// Failures are swallowed into content so the chat UI always has
// something to display.
const generationFailedMessage = "Sorry, I ran into a problem while writing this answer. Please try again in a moment."

// streamGrounded streams a knowledge-grounded answer followed by the
// fixed trailer. Generation failures become in-stream text and a nil
// return; only stream callback errors (caller gone) propagate.
func (s *Service) streamGrounded(ctx context.Context, question string, chunks []string, stream StreamFunc) error {
	var streamErr error
	cb := func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
		for _, part := range chunk.Content {
			if part.Text == "" {
				continue
			}
			if err := stream(ctx, part.Text); err != nil {
				streamErr = err
				return err
			}
		}
		return nil
	}

	_, err := genkit.Generate(ctx, s.g,
		ai.WithModelName(s.modelName),
		ai.WithSystem(groundedSystemPrompt),
		ai.WithPrompt(groundedPrompt, strings.Join(chunks, "\n\n"), question),
		ai.WithStreaming(cb),
	)
	if streamErr != nil {
		return streamErr
	}
	if err != nil {
		s.logger.Warn("grounded generation failed", "error", err)
		return stream(ctx, generationFailedMessage)
	}

	return stream(ctx, knowledgeBaseTrailer)
}
