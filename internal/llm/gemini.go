package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/Lllllllleong/documentevaluator/internal/models"
)

const defaultGeminiModel = "gemini-2.5-pro"

// GeminiClient calls the Gemini API with an API key.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature *float32
}

// NewGemini creates a client configured for the Gemini API backend.
func NewGemini(ctx context.Context, cfg Config) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClient{client: client, model: model, temperature: cfg.Temperature}, nil
}

func (g *GeminiClient) Provider() string { return ProviderGemini }

func (g *GeminiClient) Complete(ctx context.Context, p Prompt) (string, error) {
	config := &genai.GenerateContentConfig{Temperature: g.temperature}
	if p.System != "" {
		config.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(p.User), config)
	if err != nil {
		return "", fmt.Errorf("generate content: %v: %w", err, models.ErrInferenceFailed)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		// first usable candidate only
		if builder.Len() > 0 {
			break
		}
	}

	output := trimFences(builder.String())
	if output == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyCompletion)
	}
	return output, nil
}

// Close is a no-op; the genai client holds no resources that need releasing.
func (g *GeminiClient) Close() error { return nil }
