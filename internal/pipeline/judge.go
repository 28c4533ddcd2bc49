package pipeline

import (
	"context"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"
)

// judgePrompt demands a bare YES or NO so the decision rule below can
// stay a string check instead of JSON parsing.
const judgePrompt = `You are a strict relevance checker for a helpdesk knowledge base.

Context:
%s

Question: %s

Does the context above fully and clearly answer the question? Reply with exactly one word: YES or NO.`

// judge decides whether the retrieved answers cover the question.
//
// Empty chunks short-circuit to false without a model call. Otherwise a
// single low-temperature generation is made, no retries. The reply counts
// as relevant only when it contains YES and not NO; ambiguous replies,
// failures and timeouts all fail closed to false, because an uncertain
// judge must never let an unverified answer pass as grounded truth.
func (s *Service) judge(ctx context.Context, question string, chunks []string) bool {
	if len(chunks) == 0 {
		return false
	}

	contextBlock := strings.Join(chunks, "\n\n")

	resp, err := genkit.Generate(ctx, s.g,
		ai.WithModelName(s.modelName),
		ai.WithPrompt(judgePrompt, contextBlock, question),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr[float32](0),
		}),
	)
	if err != nil {
		s.logger.Warn("relevance judge call failed, treating as not relevant", "error", err)
		return false
	}

	reply := strings.ToUpper(strings.TrimSpace(resp.Text()))
	relevant := strings.Contains(reply, "YES") && !strings.Contains(reply, "NO")
	s.logger.Debug("relevance verdict", "relevant", relevant, "reply_length", len(reply))
	return relevant
}
