package services

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIService polishes user-supplied prompts before image composition.
// Optional: when no API key is configured the orchestrator runs without it.
type OpenAIService struct {
	client *openai.Client
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

const enhanceSystemPrompt = `You rewrite short user prompts for an ecommerce product-photo generator.
Keep the user's intent, add concrete photographic detail (setting, lighting, camera angle), and stay under 60 words.
Return only the rewritten prompt, no preamble.`

// EnhancePrompt rewrites the user's free-text prompt with concrete
// photographic direction. Callers treat any error as "use the raw prompt".
func (s *OpenAIService) EnhancePrompt(ctx context.Context, productName, userPrompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: "gpt-5-mini",
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: enhanceSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Product: %s\nPrompt: %s", productName, userPrompt),
			},
		},
		Temperature: 1.0,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	enhanced := strings.TrimSpace(resp.Choices[0].Message.Content)
	if enhanced == "" {
		return "", fmt.Errorf("empty prompt from openai")
	}

	return enhanced, nil
}
