package config

import (
	"fmt"
	"strings"
)

// validSSLModes are the libpq sslmode values accepted by pgx.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks configuration common to all modes.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.RetrievalThreshold < 0 || c.RetrievalThreshold > 1 {
		return fmt.Errorf("%w: retrieval_threshold %v not in [0, 1]", ErrInvalidThreshold, c.RetrievalThreshold)
	}
	if c.DedupThreshold < 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("%w: dedup_threshold %v not in [0, 1]", ErrInvalidThreshold, c.DedupThreshold)
	}
	if c.RetrievalLimit < 1 || c.RetrievalLimit > 50 {
		return fmt.Errorf("%w: retrieval_limit %d not in [1, 50]", ErrInvalidRetrievalLimit, c.RetrievalLimit)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d not in [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}

// ValidateServe checks configuration required by the HTTP server.
// The API token is the trust boundary for pipeline access, so serve mode
// refuses to start without one.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.APIToken) == "" {
		return fmt.Errorf("%w: set ANSWERDESK_API_TOKEN or api_token in config", ErrMissingAPIToken)
	}
	return nil
}
