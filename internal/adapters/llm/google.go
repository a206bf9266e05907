package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type googleProvider struct {
	client *genai.Client
	cfg    Config
}

func newGoogle(ctx context.Context, cfg Config) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("google client: %w", err)
	}
	return &googleProvider{client: client, cfg: cfg}, nil
}

func (p *googleProvider) Provider() string { return ProviderGoogle }

func (p *googleProvider) Complete(ctx context.Context, req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", ErrNoMessages
	}
	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(maxTokens(req, p.cfg)),
	}
	if req.Seed != 0 {
		gc.Seed = genai.Ptr(int32(req.Seed))
	}
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			gc.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, modelName(req, p.cfg), contents, gc)
	if err != nil {
		return "", fmt.Errorf("google request failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
