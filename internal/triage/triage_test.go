package triage

import (
	"fmt"
	"testing"

	"github.com/nkarev/driftbrief/internal/model"
)

func triageScope() model.Scope {
	return model.Scope{
		PrimaryTickers:   []string{"META", "GOOGL", "CRWD"},
		WatchlistTickers: []string{"NFLX"},
		Credibility: map[string]float64{
			"jefferies": 0.8,
			"substack":  0.75,
			"unknown":   0.3,
		},
	}
}

func TestScoreOrdering(t *testing.T) {
	scope := triageScope()

	tracked := Score(model.Classification{
		Category: model.CategoryTrackedTicker, Tickers: []string{"META"},
		ContentType: model.ContentForecast, Polarity: model.PolarityPositive,
	}, scope, "jefferies")

	watchlist := Score(model.Classification{
		Category: model.CategoryTrackedTicker, Tickers: []string{"NFLX"},
		ContentType: model.ContentForecast, Polarity: model.PolarityPositive,
	}, scope, "jefferies")

	macro := Score(model.Classification{
		Category: model.CategoryMacro, ContentType: model.ContentFact,
		Polarity: model.PolarityNeutral,
	}, scope, "jefferies")

	irrelevant := Score(model.Classification{
		Category: model.CategoryIrrelevant, ContentType: model.ContentFact,
		Polarity: model.PolarityNeutral,
	}, scope, "jefferies")

	if tracked <= macro {
		t.Errorf("tracked ticker (%.3f) should outscore macro (%.3f)", tracked, macro)
	}
	if tracked <= watchlist {
		t.Errorf("primary ticker (%.3f) should outscore watchlist (%.3f)", tracked, watchlist)
	}
	if irrelevant != 0 {
		t.Errorf("irrelevant scored %.3f, want hard 0", irrelevant)
	}
}

func TestScoreSourceCredibility(t *testing.T) {
	scope := triageScope()
	clf := model.Classification{
		Category: model.CategoryTrackedTicker, Tickers: []string{"META"},
		ContentType: model.ContentFact, Polarity: model.PolarityNeutral,
	}

	if Score(clf, scope, "jefferies") <= Score(clf, scope, "nobody") {
		t.Error("known source should outscore unknown source")
	}
}

func TestJaccardSimilarity(t *testing.T) {
	if got := JaccardSimilarity("a b c", "a b c"); got != 1.0 {
		t.Errorf("identical texts = %.2f, want 1.0", got)
	}
	if got := JaccardSimilarity("alpha beta", "gamma delta"); got != 0.0 {
		t.Errorf("disjoint texts = %.2f, want 0.0", got)
	}
	if got := JaccardSimilarity("", "anything"); got != 0.0 {
		t.Errorf("empty text = %.2f, want 0.0", got)
	}
}

func makeChunk(id, text string) model.Chunk {
	c := model.NewChunk("doc", 0, text)
	c.ChunkID = id
	return c
}

func TestRunDropsBelowThreshold(t *testing.T) {
	tr := New(triageScope(), 0.7, 50)

	chunks := []model.Chunk{
		makeChunk("hi", "META raising price target on AI monetization acceleration and Reels inflection"),
		makeChunk("lo", "General market commentary on broad conditions with mixed signals"),
	}
	clfs := []model.Classification{
		{ChunkID: "hi", Category: model.CategoryTrackedTicker, Tickers: []string{"META"}, ContentType: model.ContentForecast, Polarity: model.PolarityPositive},
		{ChunkID: "lo", Category: model.CategoryMacro, ContentType: model.ContentInterpretation, Polarity: model.PolarityNeutral},
	}

	result := tr.Run(chunks, clfs, "jefferies")

	if len(result.Kept) != 1 || result.Kept[0].Chunk.ChunkID != "hi" {
		t.Fatalf("kept = %v, want only the high-scoring chunk", result.Kept)
	}
	if len(result.Dropped) != 1 || result.Dropped[0].Reason != DropBelowThreshold {
		t.Errorf("dropped = %+v, want one below_threshold drop", result.Dropped)
	}
}

func TestRunDeduplicates(t *testing.T) {
	tr := New(triageScope(), 0.5, 50)

	chunks := []model.Chunk{
		makeChunk("a", "META raising price target to 750 on AI monetization with Reels inflecting positively across platforms"),
		makeChunk("b", "META raising price target to 750 on AI monetization acceleration with Reels monetization inflecting"),
		makeChunk("c", "CRWD faces regulatory headwinds in the European Union expansion market"),
	}
	clfs := []model.Classification{
		{ChunkID: "a", Category: model.CategoryTrackedTicker, Tickers: []string{"META"}, ContentType: model.ContentForecast, Polarity: model.PolarityPositive},
		{ChunkID: "b", Category: model.CategoryTrackedTicker, Tickers: []string{"META"}, ContentType: model.ContentForecast, Polarity: model.PolarityPositive},
		{ChunkID: "c", Category: model.CategoryTrackedTicker, Tickers: []string{"CRWD"}, ContentType: model.ContentRisk, Polarity: model.PolarityNegative},
	}

	result := tr.Run(chunks, clfs, "jefferies")

	metaKept := 0
	for _, s := range result.Kept {
		if len(s.Classification.Tickers) > 0 && s.Classification.Tickers[0] == "META" {
			metaKept++
		}
	}
	if metaKept != 1 {
		t.Errorf("kept %d META chunks, want 1 after dedup", metaKept)
	}

	counts := result.DropCounts()
	if counts[DropDuplicate] != 1 {
		t.Errorf("duplicate drops = %d, want 1", counts[DropDuplicate])
	}
}

func TestRunCapsOutput(t *testing.T) {
	tr := New(triageScope(), 0.1, 2)

	var chunks []model.Chunk
	var clfs []model.Classification
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("c%d", i)
		chunks = append(chunks, makeChunk(id, fmt.Sprintf("unique chunk number %d discussing ticker GOOGL topic%d signal%d", i, i, i*7)))
		clfs = append(clfs, model.Classification{
			ChunkID: id, Category: model.CategoryTrackedTicker, Tickers: []string{"GOOGL"},
			ContentType: model.ContentFact, Polarity: model.PolarityNeutral,
		})
	}

	result := tr.Run(chunks, clfs, "jefferies")
	// Dedup may cut some; whatever survives must respect the cap
	if len(result.Kept) > 2 {
		t.Errorf("kept %d chunks, cap is 2", len(result.Kept))
	}
}

func TestProtectedChunkBypassesEveryCut(t *testing.T) {
	tr := New(triageScope(), 0.99, 1) // impossible threshold, cap of 1

	chunks := []model.Chunk{
		makeChunk("boring", "Sector commentary with very low relevance to anything tracked"),
		makeChunk("protected", "CRWD announced its CFO is departing effective immediately"),
	}
	clfs := []model.Classification{
		{ChunkID: "boring", Category: model.CategoryMacro, ContentType: model.ContentInterpretation, Polarity: model.PolarityNeutral},
		{ChunkID: "protected", Category: model.CategoryTrackedTicker, Tickers: []string{"CRWD"}, ContentType: model.ContentFact, Polarity: model.PolarityNegative, EventType: model.EventOrg},
	}

	result := tr.Run(chunks, clfs, "jefferies")

	found := false
	for _, s := range result.Kept {
		if s.Chunk.ChunkID == "protected" {
			found = true
		}
	}
	if !found {
		t.Fatal("protected event chunk must survive threshold and cap")
	}
	for _, d := range result.Dropped {
		if d.Chunk.ChunkID == "protected" {
			t.Fatal("protected event chunk appeared in dropped list")
		}
	}
}

func TestThinDayRecovery(t *testing.T) {
	tr := New(triageScope(), 0.99, 50) // everything fails the threshold

	var chunks []model.Chunk
	var clfs []model.Classification
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("c%d", i)
		chunks = append(chunks, makeChunk(id, fmt.Sprintf("distinct macro observation number %d about policy item%d", i, i*13)))
		clfs = append(clfs, model.Classification{
			ChunkID: id, Category: model.CategoryMacro,
			ContentType: model.ContentFact, Polarity: model.PolarityNeutral,
		})
	}

	result := tr.Run(chunks, clfs, "jefferies")
	if len(result.Kept) != MinSurvivingChunks {
		t.Errorf("kept %d chunks, floor is %d", len(result.Kept), MinSurvivingChunks)
	}
	if result.InputCount != 8 {
		t.Errorf("InputCount = %d, want 8", result.InputCount)
	}
	if len(result.Kept)+len(result.Dropped) != result.InputCount {
		t.Error("audit trail does not account for every input chunk")
	}
}
