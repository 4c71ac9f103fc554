// Package llm wraps the text-completion services the pipeline can drive.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider names accepted by New.
const (
	ProviderVertex = "vertex"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ErrEmptyCompletion is returned when the service answered but produced no text,
// for example because a safety filter blocked the candidate.
var ErrEmptyCompletion = errors.New("completion returned no text")

// Prompt is a rendered two-part prompt.
type Prompt struct {
	System string
	User   string
}

// Client issues one completion per call.
type Client interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Provider() string
	Close() error
}

// Config selects and configures a provider. APIKey is resolved by the caller once
// per pipeline run and is ignored by the vertex provider, which uses ADC.
type Config struct {
	Provider    string
	Model       string
	ProjectID   string
	Region      string
	BaseURL     string
	APIKey      string
	Temperature *float32
}

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderVertex:
		return NewVertex(ctx, cfg)
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// trimFences strips a surrounding markdown code fence from model output.
func trimFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], " \t") {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
