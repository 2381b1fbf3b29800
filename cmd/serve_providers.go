package cmd

import (
	"context"
	"fmt"

	"github.com/anna0613/linebot-control-plane/internal/config"
	"github.com/anna0613/linebot-control-plane/internal/llm"
	"github.com/anna0613/linebot-control-plane/internal/retrieval"
)

// buildLLMProviders constructs one llm.Provider per configured API key
// (spec §4.6 "multi-provider") and reports which provider name is the
// default per cfg.LLM.DefaultProvider.
func buildLLMProviders(cfg config.LLMConfig) ([]llm.Provider, string, error) {
	var providers []llm.Provider

	if cfg.OpenAI.APIKey != "" {
		providers = append(providers, llm.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.APIBase, "gpt-4o-mini"))
	}
	if cfg.Anthropic.APIKey != "" {
		providers = append(providers, llm.NewAnthropicProvider(cfg.Anthropic.APIKey, "claude-3-5-haiku-latest"))
	}
	if cfg.Gemini.APIKey != "" {
		gp, err := llm.NewGeminiProvider(context.Background(), cfg.Gemini.APIKey, "gemini-1.5-flash")
		if err != nil {
			return nil, "", fmt.Errorf("init gemini provider: %w", err)
		}
		providers = append(providers, gp)
	}

	if len(providers) == 0 {
		return nil, "", fmt.Errorf("no LLM provider configured: set at least one of CONTROLPLANE_OPENAI_API_KEY, CONTROLPLANE_ANTHROPIC_API_KEY, CONTROLPLANE_GEMINI_API_KEY")
	}

	defaultProvider := cfg.DefaultProvider
	if defaultProvider == "" {
		defaultProvider = providers[0].Name()
	}
	return providers, defaultProvider, nil
}

// firstOpenAI returns the OpenAI provider, if configured — the only
// provider wired for embeddings (spec §4.4 "embedding model").
func firstOpenAI(providers []llm.Provider) (*llm.OpenAIProvider, bool) {
	for _, p := range providers {
		if oa, ok := p.(*llm.OpenAIProvider); ok {
			return oa, true
		}
	}
	return nil, false
}

// retrievalParamsFromConfig maps the process-wide retrieval defaults onto
// retrieval.Params; the orchestrator later overlays the per-bot threshold,
// top_k and history window from store.Bot onto these defaults for each
// RAG run.
func retrievalParamsFromConfig(cfg config.RetrievalConfig) retrieval.Params {
	mode := retrieval.ModeVector
	switch cfg.Mode {
	case "hybrid_rrf":
		mode = retrieval.ModeHybrid
	case "rerank":
		mode = retrieval.ModeRerank
	}
	return retrieval.Params{
		Mode:          mode,
		InitialK:      cfg.InitialK,
		HybridWeightV: cfg.HybridWeightV,
		HybridWeightL: cfg.HybridWeightL,
	}
}
