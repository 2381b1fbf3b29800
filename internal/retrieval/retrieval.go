// Package retrieval implements the Retrieval Engine (C5): intent
// classification, vector/hybrid-RRF/rerank search, and context/history
// assembly for the RAG pipeline (spec §4.5).
package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/anna0613/linebot-control-plane/internal/convo"
	"github.com/anna0613/linebot-control-plane/internal/knowledge"
)

// Mode selects the retrieval strategy. Spec §9 Design Notes: hybrid RRF
// and rerank are treated as mutually exclusive, resolved by this single
// configured mode rather than independent flags (Open Question
// resolution, recorded in DESIGN.md).
type Mode string

const (
	ModeVector Mode = "vector"
	ModeHybrid Mode = "hybrid_rrf"
	ModeRerank Mode = "rerank"
)

// rrfConstant is the fixed k in the RRF formula weight/(k+rank) (spec §9).
const rrfConstant = 60.0

// Embedder produces a query embedding. Satisfied by the LLM client's
// embedding call.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Classifier runs the cheap intent-classification LLM call (spec §4.5 step 1).
type Classifier interface {
	ClassifyIntent(ctx context.Context, message string, docSummaries []knowledge.DocumentSummary) (string, error)
}

// Reranker scores (query, passage) pairs with an external cross-encoder
// (spec §4.5 "Rerank" mode).
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Params configures one retrieval invocation: process-wide defaults from
// config, with the bot's threshold, top-k and history window overlaid.
type Params struct {
	Mode           Mode
	EmbeddingModel string
	Threshold      float64
	K              int
	InitialK       int // rerank mode's pre-rerank fan-out, default 20
	HybridWeightV  float64
	HybridWeightL  float64
	HistoryN       int
}

func (p Params) withDefaults() Params {
	if p.K <= 0 {
		p.K = 5
	}
	if p.InitialK <= 0 {
		p.InitialK = 20
	}
	if p.HybridWeightV == 0 && p.HybridWeightL == 0 {
		p.HybridWeightV, p.HybridWeightL = 0.7, 0.3
	}
	if p.HistoryN <= 0 {
		p.HistoryN = 10
	}
	return p
}

// Engine wires the intent classifier, knowledge store, and optional
// reranker together.
type Engine struct {
	knowledge  knowledge.Store
	convo      convo.Store
	embedder   Embedder
	classifier Classifier
	reranker   Reranker
}

func NewEngine(k knowledge.Store, c convo.Store, embedder Embedder, classifier Classifier, reranker Reranker) *Engine {
	return &Engine{knowledge: k, convo: c, embedder: embedder, classifier: classifier, reranker: reranker}
}

// Result is what the orchestrator hands to the LLM client.
type Result struct {
	ContextText string // "" when retrieval was skipped or empty
	History     []HistoryTurn
	Retrieved   bool
}

type HistoryTurn struct {
	Role string // "assistant" | "user"
	Text string
}

var nonWord = regexp.MustCompile(`[^\w]+`)

// ClassifyIntent implements spec §4.5 step 1's exact string rule:
// strip non-word characters, lower-case, then compare.
func ClassifyIntent(raw string) string {
	cleaned := strings.ToLower(nonWord.ReplaceAllString(raw, ""))
	if cleaned == "chat" {
		return "chat"
	}
	if cleaned == "query" || strings.Contains(cleaned, "query") {
		return "query"
	}
	return "query"
}

// Run executes the full pipeline for one user message (spec §4.5).
func (e *Engine) Run(ctx context.Context, botID, lineUserID, message string, p Params) (Result, error) {
	p = p.withDefaults()

	history, err := e.assembleHistory(ctx, botID, lineUserID, p.HistoryN)
	if err != nil {
		return Result{}, fmt.Errorf("assemble history: %w", err)
	}

	intent := e.classify(ctx, botID, message)
	if intent == "chat" {
		return Result{History: history, Retrieved: false}, nil
	}

	chunks, err := e.retrieve(ctx, botID, message, p)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve: %w", err)
	}
	if len(chunks) == 0 {
		return Result{History: history, Retrieved: true}, nil // retrieval_empty — not an error
	}

	return Result{ContextText: assembleContext(chunks), History: history, Retrieved: true}, nil
}

// classify defaults to "query" on any classifier failure (spec §4.5
// "Classification failure → default to query").
func (e *Engine) classify(ctx context.Context, botID, message string) string {
	if e.classifier == nil {
		return "query"
	}
	summaries, err := e.knowledge.DocumentSummaries(ctx, botID, 10)
	if err != nil {
		return "query"
	}
	raw, err := e.classifier.ClassifyIntent(ctx, message, summaries)
	if err != nil {
		return "query"
	}
	return ClassifyIntent(raw)
}

func (e *Engine) retrieve(ctx context.Context, botID, message string, p Params) ([]knowledge.ScoredChunk, error) {
	switch p.Mode {
	case ModeHybrid:
		return e.retrieveHybrid(ctx, botID, message, p)
	case ModeRerank:
		return e.retrieveRerank(ctx, botID, message, p)
	default:
		return e.retrieveVector(ctx, botID, message, p)
	}
}

func (e *Engine) embed(ctx context.Context, model, text string) ([]float32, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	return e.embedder.Embed(ctx, model, text)
}

func (e *Engine) retrieveVector(ctx context.Context, botID, message string, p Params) ([]knowledge.ScoredChunk, error) {
	vec, err := e.embed(ctx, p.EmbeddingModel, message)
	if err != nil {
		return nil, err
	}
	return e.knowledge.SearchVector(ctx, botID, vec, p.Threshold, p.K)
}

// retrieveHybrid fuses vector and lexical rankings by Reciprocal Rank
// Fusion (spec §4.5 step 2 "Hybrid RRF").
func (e *Engine) retrieveHybrid(ctx context.Context, botID, message string, p Params) ([]knowledge.ScoredChunk, error) {
	twoK := 2 * p.K

	vec, err := e.embed(ctx, p.EmbeddingModel, message)
	if err != nil {
		return nil, err
	}
	vectorHits, err := e.knowledge.SearchVector(ctx, botID, vec, p.Threshold, twoK)
	if err != nil {
		return nil, err
	}
	lexicalHits, err := e.knowledge.SearchLexical(ctx, botID, message, twoK)
	if err != nil {
		return nil, err
	}

	fused := fuseRRF(vectorHits, lexicalHits, p.HybridWeightV, p.HybridWeightL)
	if len(fused) > p.K {
		fused = fused[:p.K]
	}
	return fused, nil
}

// fuseRRF implements RRF: score(item) = sum over lists containing it of
// weight / (rrfConstant + rank), rank 1-based (spec §9).
func fuseRRF(vectorHits, lexicalHits []knowledge.ScoredChunk, weightV, weightL float64) []knowledge.ScoredChunk {
	scores := make(map[string]float64)
	chunkByID := make(map[string]knowledge.Chunk)

	accumulate := func(hits []knowledge.ScoredChunk, weight float64) {
		for rank, h := range hits {
			scores[h.Chunk.ID] += weight / (rrfConstant + float64(rank+1))
			chunkByID[h.Chunk.ID] = h.Chunk
		}
	}
	accumulate(vectorHits, weightV)
	accumulate(lexicalHits, weightL)

	out := make([]knowledge.ScoredChunk, 0, len(scores))
	for id, score := range scores {
		out = append(out, knowledge.ScoredChunk{Chunk: chunkByID[id], Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// retrieveRerank implements spec §4.5 step 2 "Rerank": initial vector
// fan-out, cross-encoder scoring, an equal-weight (0.5/0.5) blend with the
// original vector score ("hybrid rerank"), top-K by blended score.
func (e *Engine) retrieveRerank(ctx context.Context, botID, message string, p Params) ([]knowledge.ScoredChunk, error) {
	vec, err := e.embed(ctx, p.EmbeddingModel, message)
	if err != nil {
		return nil, err
	}
	initial, err := e.knowledge.SearchVector(ctx, botID, vec, p.Threshold, p.InitialK)
	if err != nil {
		return nil, err
	}
	if len(initial) == 0 || e.reranker == nil {
		if len(initial) > p.K {
			initial = initial[:p.K]
		}
		return initial, nil
	}

	passages := make([]string, len(initial))
	for i, c := range initial {
		passages[i] = c.Chunk.Content
	}
	rerankScores, err := e.reranker.Rerank(ctx, message, passages)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder rerank: %w", err)
	}

	blended := make([]knowledge.ScoredChunk, len(initial))
	for i, c := range initial {
		score := c.Score
		if i < len(rerankScores) {
			score = 0.5*rerankScores[i] + 0.5*c.Score // hybrid rerank blend
		}
		blended[i] = knowledge.ScoredChunk{Chunk: c.Chunk, Score: score}
	}
	sort.Slice(blended, func(i, j int) bool { return blended[i].Score > blended[j].Score })
	if len(blended) > p.K {
		blended = blended[:p.K]
	}
	return blended, nil
}

// assembleContext concatenates retrieved chunks as "[片段i]\n{content}"
// separated by blank lines (spec §4.5 step 3).
func assembleContext(chunks []knowledge.ScoredChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[片段%d]\n%s", i+1, c.Chunk.Content)
	}
	return b.String()
}

// assembleHistory fetches the last n messages and maps sender types to
// provider roles (spec §4.5 step 4).
func (e *Engine) assembleHistory(ctx context.Context, botID, lineUserID string, n int) ([]HistoryTurn, error) {
	items, err := e.convo.RecentHistory(ctx, botID, lineUserID, n)
	if err != nil {
		return nil, err
	}
	turns := make([]HistoryTurn, 0, len(items))
	for _, m := range items {
		role := "user"
		if m.SenderType == convo.SenderBot {
			role = "assistant"
		}
		turns = append(turns, HistoryTurn{Role: role, Text: m.TextContent()})
	}
	return turns, nil
}
