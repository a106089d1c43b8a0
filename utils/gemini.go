package utils

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/wayBiggger/way-bigger/config"
)

// GeminiClient wraps the Gemini API for the AI assistant endpoints
type GeminiClient struct {
	apiKey string
	model  string
}

func NewGeminiClient() *GeminiClient {
	return &GeminiClient{
		apiKey: config.AppConfig.GeminiAPIKey,
		model:  config.AppConfig.GeminiModel,
	}
}

func (g *GeminiClient) IsConfigured() bool {
	return g.apiKey != ""
}

// Generate sends a prompt to Gemini and returns the concatenated text parts
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if !g.IsConfigured() {
		return "", fmt.Errorf("gemini is not configured (missing API key)")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	var temperature float32 = 0.7
	model.Temperature = &temperature

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}

	var output string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			output += string(text)
		}
	}
	return output, nil
}
