package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/documentevaluator/internal/models"
)

const defaultVertexModel = "gemini-1.5-pro"

// VertexClient calls Gemini models through Vertex AI with application default credentials.
type VertexClient struct {
	base        *genai.Client
	model       string
	temperature *float32
}

// NewVertex creates a Vertex AI client for the configured project and region.
func NewVertex(ctx context.Context, cfg Config) (*VertexClient, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("NewVertex: projectID and region cannot be empty")
	}

	base, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultVertexModel
	}
	return &VertexClient{base: base, model: model, temperature: cfg.Temperature}, nil
}

func (c *VertexClient) Provider() string { return ProviderVertex }

// Complete sends one prompt. A fresh model handle is configured per call so concurrent
// map calls never share a mutable system instruction.
func (c *VertexClient) Complete(ctx context.Context, p Prompt) (string, error) {
	model := c.base.GenerativeModel(c.model)
	if p.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(p.System)},
		}
	}
	if c.temperature != nil {
		model.SetTemperature(*c.temperature)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", fmt.Errorf("vertex: %v: %w", blocked, ErrEmptyCompletion)
		}
		return "", fmt.Errorf("vertex GenerateContent: %v: %w", err, models.ErrInferenceFailed)
	}

	text := vertexText(resp)
	if text == "" {
		return "", fmt.Errorf("vertex: %w", ErrEmptyCompletion)
	}
	return text, nil
}

func vertexText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return trimFences(b.String())
}

func (c *VertexClient) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}
