package services

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github/itish2003/docbot/models"
)

// EmptyResponse is returned when no retrieved chunk is relevant enough.
const EmptyResponse = "Empty Response"

// Synthesizer turns retrieved chunks into the final answer text.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, question string, docs []models.SourceDocument) (string, error)
}

// ExtractiveSynthesizer answers with the retrieved passages themselves. It is
// the fallback when no language model is configured.
type ExtractiveSynthesizer struct{}

func NewExtractiveSynthesizer() *ExtractiveSynthesizer { return &ExtractiveSynthesizer{} }

func (ExtractiveSynthesizer) Name() string { return "extractive" }

func (ExtractiveSynthesizer) Synthesize(_ context.Context, _ string, docs []models.SourceDocument) (string, error) {
	if len(docs) == 0 {
		return EmptyResponse, nil
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if t := strings.TrimSpace(d.Text); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return EmptyResponse, nil
	}
	return strings.Join(parts, "\n\n"), nil
}

// GeminiSynthesizer asks a Gemini model to answer from the retrieved context.
type GeminiSynthesizer struct {
	client *genai.Client
	model  string
}

// NewGeminiSynthesizer creates a Gemini API client for model.
func NewGeminiSynthesizer(ctx context.Context, apiKey, model string) (*GeminiSynthesizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiSynthesizer{client: client, model: model}, nil
}

func (s *GeminiSynthesizer) Name() string { return "gemini:" + s.model }

func (s *GeminiSynthesizer) Synthesize(ctx context.Context, question string, docs []models.SourceDocument) (string, error) {
	if len(docs) == 0 {
		return EmptyResponse, nil
	}
	result, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(buildQuestionPrompt(question, docs)), &genai.GenerateContentConfig{
		SystemInstruction: GetSystemPrompt(),
	})
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return EmptyResponse, nil
	}

	var responseText strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" {
			responseText.WriteString(p.Text)
		}
	}
	if responseText.Len() == 0 {
		return EmptyResponse, nil
	}
	return responseText.String(), nil
}
