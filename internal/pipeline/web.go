package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// genericWebTrailer is used when the search-grounded generation emitted
// no usable citations.
const genericWebTrailer = "\n\n---\nSource: web search"

// streamWeb streams a web-search answer followed by a source footer.
// Same fail-soft policy as the grounded path: generation errors become
// in-stream text, only stream callback errors propagate.
func (s *Service) streamWeb(ctx context.Context, question string, stream StreamFunc) error {
	var streamErr error
	wrapped := func(ctx context.Context, chunk string) error {
		if err := stream(ctx, chunk); err != nil {
			streamErr = err
			return err
		}
		return nil
	}

	citations, err := s.web.StreamAnswer(ctx, question, wrapped)
	if streamErr != nil {
		return streamErr
	}
	if err != nil {
		s.logger.Warn("web-search generation failed", "error", err)
		return stream(ctx, generationFailedMessage)
	}

	return stream(ctx, webFooter(citations))
}

// webFooter renders the terminal source footer: a numbered list of unique
// citations, or the generic trailer when there are none.
func webFooter(citations []Citation) string {
	unique := dedupeCitations(citations)
	if len(unique) == 0 {
		return genericWebTrailer
	}

	var sb strings.Builder
	sb.WriteString("\n\n---\nSources:\n")
	for i, c := range unique {
		if c.Title != "" {
			fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, c.Title, c.URL)
		} else {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, c.URL)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// dedupeCitations removes duplicate URLs, keeping the first occurrence
// (and therefore its title) and preserving insertion order. Citations
// without a URL are dropped; there is nothing to link to.
func dedupeCitations(citations []Citation) []Citation {
	seen := make(map[string]struct{}, len(citations))
	unique := make([]Citation, 0, len(citations))
	for _, c := range citations {
		if c.URL == "" {
			continue
		}
		if _, dup := seen[c.URL]; dup {
			continue
		}
		seen[c.URL] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}
