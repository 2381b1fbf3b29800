package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider over the official Anthropic
// client, mirroring the teacher's internal/providers.AnthropicProvider
// shape (name/apiKey/defaultModel).
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    map[string]int
}

func NewAnthropicProvider(apiKey, defaultModel string) *AnthropicProvider {
	return &AnthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
		maxTokens: map[string]int{
			"claude-opus-4-5":   200000,
			"claude-sonnet-4-5": 200000,
		},
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

func (p *AnthropicProvider) MaxTokens(model string) int {
	if v, ok := p.maxTokens[model]; ok {
		return v
	}
	return 200000
}

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	var messages []anthropic.MessageParam
	for _, block := range req.blocks() {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(block)))
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(req.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: req.SystemPrompt}},
		Messages:  messages,
	})
	if err != nil {
		return "", Retryable(fmt.Errorf("anthropic messages: %w", err))
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("anthropic messages: empty content")
	}
	return resp.Content[0].Text, nil
}
