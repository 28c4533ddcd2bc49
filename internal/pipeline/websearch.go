package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

const webSystemPrompt = `You are a helpdesk assistant answering on behalf of a support team. The internal knowledge base had no answer for this question, so use live web search. Provide verified, fact-checked information only; say so when you cannot verify a claim. Keep the tone helpful and concise.`

// GeminiWebSearcher answers questions with Gemini's GoogleSearch tool,
// streaming text as it arrives and collecting grounding citations.
type GeminiWebSearcher struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiWebSearcher creates a searcher for the given model name.
// Genkit-style names ("googleai/gemini-2.5-flash") are accepted; the
// provider prefix is stripped for the genai client.
func NewGeminiWebSearcher(ctx context.Context, modelName string, logger *slog.Logger) (*GeminiWebSearcher, error) {
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Reads GEMINI_API_KEY from the environment, same as the genkit plugin.
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	if i := strings.LastIndex(modelName, "/"); i >= 0 {
		modelName = modelName[i+1:]
	}

	return &GeminiWebSearcher{client: client, model: modelName, logger: logger}, nil
}

// StreamAnswer streams a search-grounded answer and returns the raw
// citation list in emission order. Deduplication is the caller's job.
func (w *GeminiWebSearcher) StreamAnswer(ctx context.Context, question string, stream StreamFunc) ([]Citation, error) {
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
		SystemInstruction: genai.NewContentFromText(webSystemPrompt, genai.RoleUser),
	}

	var citations []Citation
	for resp, err := range w.client.Models.GenerateContentStream(ctx, w.model, genai.Text(question), config) {
		if err != nil {
			return citations, fmt.Errorf("web-search generation: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content != nil {
				for _, part := range cand.Content.Parts {
					if part.Text == "" {
						continue
					}
					if streamErr := stream(ctx, part.Text); streamErr != nil {
						return citations, streamErr
					}
				}
			}
			if cand.GroundingMetadata != nil {
				for _, gc := range cand.GroundingMetadata.GroundingChunks {
					if gc.Web == nil {
						continue
					}
					citations = append(citations, Citation{
						Title: gc.Web.Title,
						URL:   gc.Web.URI,
					})
				}
			}
		}
	}

	w.logger.Debug("web search stream complete", "citations", len(citations))
	return citations, nil
}
