package chat

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Taoreunda/ptsd-homework-agent/internal/session"
)

// OpenAIConfig configures the chat-completion client.
type OpenAIConfig struct {
	APIKey       string
	Model        string // e.g. "gpt-4o-mini"
	Temperature  float32
	SystemPrompt string // optional; prepended to every request
}

// openAIClient implements Client on the OpenAI chat-completion API.
type openAIClient struct {
	client       *openai.Client
	model        string
	temperature  float32
	systemPrompt string
}

// NewOpenAIClient creates a Client backed by OpenAI chat completions.
func NewOpenAIClient(cfg OpenAIConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &openAIClient{
		client:       openai.NewClient(cfg.APIKey),
		model:        model,
		temperature:  cfg.Temperature,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

func (c *openAIClient) Complete(ctx context.Context, history []ModelMessage) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if c.systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemPrompt,
		})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case session.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case session.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
