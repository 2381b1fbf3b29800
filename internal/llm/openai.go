package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider implements Provider over the official OpenAI client,
// grounded on the shape of the teacher's internal/providers.OpenAIProvider
// (name/apiKey/apiBase/defaultModel) but delegating transport to the SDK
// instead of a hand-rolled HTTP client.
type OpenAIProvider struct {
	client       openai.Client
	defaultModel string
	maxTokens    map[string]int
}

func NewOpenAIProvider(apiKey, apiBase, defaultModel string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(apiBase, "/")))
	}
	return &OpenAIProvider{
		client:       openai.NewClient(opts...),
		defaultModel: defaultModel,
		maxTokens: map[string]int{
			"gpt-4o":      128000,
			"gpt-4o-mini": 128000,
			"gpt-4.1":     1000000,
		},
	}
}

func (p *OpenAIProvider) Name() string         { return "openai" }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

func (p *OpenAIProvider) MaxTokens(model string) int {
	if v, ok := p.maxTokens[model]; ok {
		return v
	}
	return 128000
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.SystemPrompt),
	}
	for _, block := range req.blocks() {
		messages = append(messages, openai.UserMessage(block))
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(req.MaxTokens)),
	})
	if err != nil {
		return "", Retryable(fmt.Errorf("openai chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed implements retrieval.Embedder for the vector/hybrid retrieval
// modes (spec §4.5).
func (p *OpenAIProvider) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if model == "" {
		model = "text-embedding-3-small"
	}
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, Retryable(fmt.Errorf("openai embeddings: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: no data returned")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}
