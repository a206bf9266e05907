package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type openAIProvider struct {
	client *openai.Client
	cfg    Config
}

func newOpenAI(_ context.Context, cfg Config) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &openAIProvider{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

func (p *openAIProvider) Provider() string { return ProviderOpenAI }

func (p *openAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", ErrNoMessages
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}
	creq := openai.ChatCompletionRequest{
		Model:       modelName(req, p.cfg),
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   maxTokens(req, p.cfg),
	}
	if req.Seed != 0 {
		seed := int(req.Seed)
		creq.Seed = &seed
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai api error (%d): %w", apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIRole(role string) string {
	switch role {
	case "system":
		return openai.ChatMessageRoleSystem
	case "assistant":
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
