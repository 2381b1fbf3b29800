// Package llm implements the LLM Client (C6): a multi-provider
// abstraction with prompt assembly, retry, and circuit breaking (spec
// §4.6), grounded on the teacher's internal/providers.Provider shape.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anna0613/linebot-control-plane/internal/knowledge"
)

// Provider is the minimal surface every backend (OpenAI, Anthropic,
// Gemini) implements — narrower than the teacher's agent-oriented
// Provider interface (no tool calls, no streaming) because C6 only ever
// needs single-shot text generation (spec §4.6 contract).
type Provider interface {
	Name() string
	DefaultModel() string
	MaxTokens(model string) int
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is the assembled prompt, in the fixed block order spec §4.6
// requires: system, optional history, optional knowledge context,
// question.
type Request struct {
	Model        string
	SystemPrompt string
	History      string // "" if no turns
	Context      string // "" if retrieval was skipped or empty
	Question     string
	MaxTokens    int
}

// baseSystemPrompt constrains output to plain text renderable in a chat
// bubble (spec §4.6 "Response formatting").
const baseSystemPrompt = `你是一個會在聊天氣泡中顯示回覆的助理。只能輸出純文字：` +
	`禁止使用 Markdown 強調、程式碼區塊、標題或項目符號。` +
	`需要強調或條列時，請改用全形括號「」與分隔符號・。`

// BuildSystemPrompt concatenates the base constraint with an optional
// per-bot system prompt.
func BuildSystemPrompt(perBot string) string {
	if strings.TrimSpace(perBot) == "" {
		return baseSystemPrompt
	}
	return baseSystemPrompt + "\n\n" + perBot
}

// DefaultMaxTokens applies spec §4.6's "80% of model max, floor 2048,
// cap at model max" rule.
func DefaultMaxTokens(modelMax int) int {
	if modelMax <= 0 {
		return 2048
	}
	v := int(float64(modelMax) * 0.8)
	if v < 2048 {
		v = 2048
	}
	if v > modelMax {
		v = modelMax
	}
	return v
}

func (r Request) resolvedMaxTokens(p Provider) int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens(p.MaxTokens(r.Model))
}

// blocks renders the history/context/question user turns as distinct
// textual blocks rather than provider-specific roles (spec §4.6 "no
// provider-specific role abuse").
func (r Request) blocks() []string {
	var out []string
	if r.History != "" {
		out = append(out, "對話紀錄：\n"+r.History)
	}
	if r.Context != "" {
		out = append(out, "知識庫摘錄：\n"+r.Context)
	}
	out = append(out, "使用者問題：\n"+r.Question)
	return out
}

// Client dispatches to the configured default provider (or a named one)
// with retry and circuit breaking applied uniformly (spec §4.6).
type Client struct {
	providers map[string]Provider
	defaultP  string
	breakers  map[string]*breaker
	retry     RetryPolicy
}

func NewClient(defaultProvider string, retry RetryPolicy, providers ...Provider) *Client {
	m := make(map[string]Provider, len(providers))
	breakers := make(map[string]*breaker, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
		breakers[p.Name()] = newBreaker(retry.BreakerThreshold, retry.BreakerOpenDuration)
	}
	return &Client{providers: m, defaultP: defaultProvider, breakers: breakers, retry: retry}
}

// Ask implements the C6 contract: ask(question, context_text, history,
// model, system_prompt, max_tokens?) → answer_text.
func (c *Client) Ask(ctx context.Context, providerName string, req Request) (string, error) {
	if providerName == "" {
		providerName = c.defaultP
	}
	p, ok := c.providers[providerName]
	if !ok {
		return "", fmt.Errorf("llm: unknown provider %q", providerName)
	}
	b := c.breakers[providerName]

	if !b.allow() {
		return "", errLLMUnavailable
	}

	req.MaxTokens = req.resolvedMaxTokens(p)
	answer, err := withRetry(ctx, c.retry, func(ctx context.Context) (string, error) {
		return p.Generate(ctx, req)
	})
	if err != nil {
		b.recordFailure()
		return "", err
	}
	b.recordSuccess()
	return answer, nil
}

// ClassifyIntent runs the cheap classification call under the hard 8s
// ceiling spec §4.6 mandates for this use, degrading to "query" on
// timeout or any failure (spec §4.5 step 1).
func (c *Client) ClassifyIntent(ctx context.Context, message string, docSummaries []knowledge.DocumentSummary) (string, error) {
	p, ok := c.providers[c.defaultP]
	if !ok {
		return "query", nil
	}
	cctx, cancel := context.WithTimeout(ctx, classifierTimeout)
	defer cancel()

	prompt := buildClassifierPrompt(message, docSummaries)
	answer, err := p.Generate(cctx, Request{
		Model:        p.DefaultModel(),
		SystemPrompt: "你是一個意圖分類器，只回答 chat 或 query 其中一個字。",
		Question:     prompt,
		MaxTokens:    8,
	})
	if err != nil {
		return "query", nil // classification failure defaults to query
	}
	return answer, nil
}

func buildClassifierPrompt(message string, docs []knowledge.DocumentSummary) string {
	var b strings.Builder
	b.WriteString("使用者訊息：\n")
	b.WriteString(message)
	if len(docs) > 0 {
		b.WriteString("\n\n可用知識文件：\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "- %s：%s\n", d.Title, d.AISummary)
		}
	}
	return b.String()
}
