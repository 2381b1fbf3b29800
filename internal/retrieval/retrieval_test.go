package retrieval

import (
	"testing"

	"github.com/anna0613/linebot-control-plane/internal/knowledge"
)

func TestClassifyIntentChat(t *testing.T) {
	if got := ClassifyIntent("Chat"); got != "chat" {
		t.Errorf("ClassifyIntent(Chat) = %q, want chat", got)
	}
}

func TestClassifyIntentQueryVariants(t *testing.T) {
	cases := []string{"query", "QUERY", "this is a query!", "random-garbage"}
	for _, c := range cases {
		if got := ClassifyIntent(c); got != "query" {
			t.Errorf("ClassifyIntent(%q) = %q, want query", c, got)
		}
	}
}

func TestClassifyIntentStripsPunctuation(t *testing.T) {
	if got := ClassifyIntent("  ch@at!! "); got != "chat" {
		t.Errorf("ClassifyIntent with punctuation = %q, want chat", got)
	}
}

func chunk(id, content string) knowledge.Chunk {
	return knowledge.Chunk{ID: id, Content: content}
}

func TestFuseRRFCombinesBothLists(t *testing.T) {
	vec := []knowledge.ScoredChunk{{Chunk: chunk("a", "A"), Score: 0.9}, {Chunk: chunk("b", "B"), Score: 0.8}}
	lex := []knowledge.ScoredChunk{{Chunk: chunk("b", "B"), Score: 5}, {Chunk: chunk("c", "C"), Score: 4}}

	fused := fuseRRF(vec, lex, 0.7, 0.3)
	if len(fused) != 3 {
		t.Fatalf("expected 3 unique chunks, got %d: %+v", len(fused), fused)
	}
	// "b" appears in both lists (rank 2 in vec, rank 1 in lex) so it should
	// score highest.
	if fused[0].Chunk.ID != "b" {
		t.Errorf("top result = %q, want b (present in both lists)", fused[0].Chunk.ID)
	}
}

func TestFuseRRFSortedDescending(t *testing.T) {
	vec := []knowledge.ScoredChunk{{Chunk: chunk("a", "A")}, {Chunk: chunk("b", "B")}, {Chunk: chunk("c", "C")}}
	fused := fuseRRF(vec, nil, 1.0, 0.0)
	for i := 1; i < len(fused); i++ {
		if fused[i-1].Score < fused[i].Score {
			t.Fatalf("fused results not sorted descending: %+v", fused)
		}
	}
}

func TestParamsWithDefaults(t *testing.T) {
	p := Params{}.withDefaults()
	if p.K != 5 {
		t.Errorf("K default = %d, want 5", p.K)
	}
	if p.InitialK != 20 {
		t.Errorf("InitialK default = %d, want 20", p.InitialK)
	}
	if p.HybridWeightV != 0.7 || p.HybridWeightL != 0.3 {
		t.Errorf("hybrid weight defaults = (%v, %v), want (0.7, 0.3)", p.HybridWeightV, p.HybridWeightL)
	}
	if p.HistoryN != 10 {
		t.Errorf("HistoryN default = %d, want 10", p.HistoryN)
	}
}

func TestParamsWithDefaultsPreservesExplicitWeights(t *testing.T) {
	p := Params{HybridWeightV: 0.5, HybridWeightL: 0.5}.withDefaults()
	if p.HybridWeightV != 0.5 || p.HybridWeightL != 0.5 {
		t.Errorf("explicit weights overwritten: %+v", p)
	}
}

func TestAssembleContextFormatsChunks(t *testing.T) {
	chunks := []knowledge.ScoredChunk{{Chunk: chunk("a", "first")}, {Chunk: chunk("b", "second")}}
	got := assembleContext(chunks)
	want := "[片段1]\nfirst\n\n[片段2]\nsecond"
	if got != want {
		t.Errorf("assembleContext = %q, want %q", got, want)
	}
}

func TestAssembleContextEmpty(t *testing.T) {
	if got := assembleContext(nil); got != "" {
		t.Errorf("assembleContext(nil) = %q, want empty", got)
	}
}
