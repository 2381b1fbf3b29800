package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider over google.golang.org/genai.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
	maxTokens    map[string]int
}

func NewGeminiProvider(ctx context.Context, apiKey, defaultModel string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{
		client:       client,
		defaultModel: defaultModel,
		maxTokens: map[string]int{
			"gemini-2.5-pro":   2000000,
			"gemini-2.5-flash": 1000000,
		},
	}, nil
}

func (p *GeminiProvider) Name() string         { return "gemini" }
func (p *GeminiProvider) DefaultModel() string { return p.defaultModel }

func (p *GeminiProvider) MaxTokens(model string) int {
	if v, ok := p.maxTokens[model]; ok {
		return v
	}
	return 1000000
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	var contents []*genai.Content
	for _, block := range req.blocks() {
		contents = append(contents, genai.NewContentFromText(block, genai.RoleUser))
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		MaxOutputTokens:   int32(req.MaxTokens),
	})
	if err != nil {
		return "", Retryable(fmt.Errorf("gemini generate content: %w", err))
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini generate content: empty response")
	}
	return text, nil
}
