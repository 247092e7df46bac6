package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/nkarev/driftbrief/internal/llm"
	"github.com/nkarev/driftbrief/internal/model"
)

type scriptedProvider struct {
	responses []string
	err       error
	calls     int
	lastUser  string
}

func (s *scriptedProvider) Name() string                         { return "scripted" }
func (s *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }
func (s *scriptedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastUser = req.User
	content := s.responses[s.calls%len(s.responses)]
	s.calls++
	return &llm.Response{Content: content}, nil
}

func testDoc() model.Document {
	doc := model.NewDocument("jefferies", model.SourceSellSide, "META: AI Monetization Inflection", "body")
	doc.Analyst = "Brent Thill"
	doc.DatePublished = "2026-01-25"
	return doc
}

func testChunk(doc model.Document) model.Chunk {
	c := model.NewChunk(doc.DocID, 0, "We are raising our price target on META to $750 from $680.")
	c.PageStart = 2
	c.PageEnd = 2
	return c
}

func extractOne(t *testing.T, response string, clf model.Classification) model.Claim {
	t.Helper()
	p := &scriptedProvider{responses: []string{response}}
	e := New(p, false)

	doc := testDoc()
	claim, err := e.Chunk(context.Background(), testChunk(doc), clf, doc)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	return claim
}

func TestExtractFullResponse(t *testing.T) {
	claim := extractOne(t, `{
		"bullets": ["META price target raised to $750 (from $680) on AI monetization acceleration", "AI-driven ad targeting improvements yielded 15% better ROAS"],
		"primary_ticker": "META",
		"has_uncertainty": false,
		"confidence_level": "high",
		"time_sensitivity": "breaking",
		"belief_pressure": "contradicts_consensus",
		"event_type": "guidance",
		"is_descriptive_event": true,
		"has_belief_delta": true,
		"sector_implication": "Ad platform AI gains may lift the whole digital advertising group."
	}`, model.Classification{Category: model.CategoryTrackedTicker, Tickers: []string{"META"}, ContentType: model.ContentForecast})

	if len(claim.Bullets) != 2 {
		t.Fatalf("Bullets = %d, want 2", len(claim.Bullets))
	}
	if claim.Ticker != "META" {
		t.Errorf("Ticker = %q, want META", claim.Ticker)
	}
	if claim.ConfidenceLevel != model.ConfidenceHigh {
		t.Errorf("ConfidenceLevel = %v, want high", claim.ConfidenceLevel)
	}
	if claim.TimeSensitivity != model.TimeBreaking {
		t.Errorf("TimeSensitivity = %v, want breaking", claim.TimeSensitivity)
	}
	if claim.EventType != model.EventGuidance {
		t.Errorf("EventType = %v, want guidance", claim.EventType)
	}
	if !claim.IsDescriptiveEvent || !claim.HasBeliefDelta {
		t.Error("event flags lost in normalization")
	}
	if claim.SectorImplication == "" {
		t.Error("sector implication lost in normalization")
	}
}

func TestCitationBuiltFromDocument(t *testing.T) {
	claim := extractOne(t, `{"bullets":["x"],"confidence_level":"medium","time_sensitivity":"ongoing","belief_pressure":"unclear"}`,
		model.Classification{Category: model.CategoryTrackedTicker, Tickers: []string{"META"}})

	if !claim.Citation.Valid() {
		t.Fatal("citation must be valid")
	}
	if claim.Citation.Source != "jefferies" || claim.Citation.Analyst != "Brent Thill" {
		t.Errorf("citation = %+v, want doc source and analyst", claim.Citation)
	}
	if claim.Citation.PageStart != 2 {
		t.Errorf("PageStart = %d, want 2 from chunk", claim.Citation.PageStart)
	}
	if got := claim.CitationString(); got != "Jefferies, Brent Thill, p.2, 2026-01-25" {
		t.Errorf("CitationString() = %q", got)
	}
}

func TestRejectsUncitableDocument(t *testing.T) {
	p := &scriptedProvider{responses: []string{`{"bullets":["x"]}`}}
	e := New(p, false)

	doc := testDoc()
	doc.Source = "" // no firm key, citation cannot resolve
	_, err := e.Chunk(context.Background(), testChunk(doc), model.Classification{}, doc)
	if !errors.Is(err, model.ErrNoCitation) {
		t.Fatalf("err = %v, want ErrNoCitation", err)
	}
	if p.calls != 0 {
		t.Error("uncitable chunk must be rejected before spending an LLM call")
	}
}

func TestBulletCapAndExcerptFallback(t *testing.T) {
	claim := extractOne(t, `{"bullets":["a","b","c","d"]}`, model.Classification{Category: model.CategoryMacro})
	if len(claim.Bullets) != 2 {
		t.Errorf("Bullets = %d, want cap at 2", len(claim.Bullets))
	}

	claim = extractOne(t, `{"bullets":[]}`, model.Classification{Category: model.CategoryMacro})
	if len(claim.Bullets) != 1 || claim.Bullets[0] == "" {
		t.Fatal("empty model bullets must fall back to a chunk excerpt")
	}
}

func TestEnumDefaults(t *testing.T) {
	claim := extractOne(t, `{"bullets":["x"],"confidence_level":"certain","time_sensitivity":"soon","belief_pressure":"hot take","event_type":"rumor"}`,
		model.Classification{Category: model.CategoryMacro})

	if claim.ConfidenceLevel != model.ConfidenceMedium {
		t.Errorf("ConfidenceLevel = %v, want medium default", claim.ConfidenceLevel)
	}
	if claim.TimeSensitivity != model.TimeOngoing {
		t.Errorf("TimeSensitivity = %v, want ongoing default", claim.TimeSensitivity)
	}
	if claim.BeliefPressure != model.PressureUnclear {
		t.Errorf("BeliefPressure = %v, want unclear default", claim.BeliefPressure)
	}
}

func TestEventTypeFallsBackToClassification(t *testing.T) {
	claim := extractOne(t, `{"bullets":["CFO departing"],"event_type":"not_a_type"}`,
		model.Classification{Category: model.CategoryTrackedTicker, Tickers: []string{"CRWD"}, EventType: model.EventOrg})

	if claim.EventType != model.EventOrg {
		t.Errorf("EventType = %v, want org from classification", claim.EventType)
	}
}

func TestTickerFallsBackToClassification(t *testing.T) {
	claim := extractOne(t, `{"bullets":["x"]}`,
		model.Classification{Category: model.CategoryTrackedTicker, Tickers: []string{"GOOGL", "META"}})

	if claim.Ticker != "GOOGL" {
		t.Errorf("Ticker = %q, want first classification ticker", claim.Ticker)
	}
}

func TestClaimIDStableAcrossRuns(t *testing.T) {
	clf := model.Classification{Category: model.CategoryTrackedTicker, Tickers: []string{"META"}}
	resp := `{"bullets":["x"],"confidence_level":"high"}`

	// Two independent ingests of the same document text. Document and
	// chunk ids are fresh each time; the claim id must not be.
	first := extractOne(t, resp, clf)
	second := extractOne(t, resp, clf)
	if first.ClaimID == "" || first.ClaimID != second.ClaimID {
		t.Fatalf("ClaimID = %q then %q, want identical across re-runs", first.ClaimID, second.ClaimID)
	}

	// A different chunk position in the same document is a different claim
	p := &scriptedProvider{responses: []string{resp}}
	e := New(p, false)
	doc := testDoc()
	other := testChunk(doc)
	other.Index = 1
	claim, err := e.Chunk(context.Background(), other, clf, doc)
	if err != nil {
		t.Fatal(err)
	}
	if claim.ClaimID == first.ClaimID {
		t.Error("distinct chunks must not share a claim id")
	}
}

func TestChunksSkipsFailures(t *testing.T) {
	p := &scriptedProvider{responses: []string{"not json at all", `{"bullets":["good"]}`}}
	e := New(p, false)

	doc := testDoc()
	chunks := []model.Chunk{testChunk(doc), testChunk(doc)}
	clfs := []model.Classification{{Category: model.CategoryMacro}, {Category: model.CategoryMacro}}

	claims := e.Chunks(context.Background(), chunks, clfs, doc)
	if len(claims) != 1 {
		t.Fatalf("claims = %d, want 1 survivor", len(claims))
	}
	if claims[0].Bullets[0] != "good" {
		t.Errorf("wrong claim survived: %+v", claims[0])
	}
}

func TestSortByPriority(t *testing.T) {
	claims := []model.Claim{
		{ClaimID: "ongoing-low", TimeSensitivity: model.TimeOngoing, BeliefPressure: model.ConfirmsConsensus, ConfidenceLevel: model.ConfidenceLow},
		{ClaimID: "breaking-confirms", TimeSensitivity: model.TimeBreaking, BeliefPressure: model.ConfirmsConsensus, ConfidenceLevel: model.ConfidenceHigh},
		{ClaimID: "breaking-contrarian", TimeSensitivity: model.TimeBreaking, BeliefPressure: model.ContradictsConsensus, ConfidenceLevel: model.ConfidenceLow},
		{ClaimID: "upcoming-high", TimeSensitivity: model.TimeUpcoming, BeliefPressure: model.PressureUnclear, ConfidenceLevel: model.ConfidenceHigh},
	}

	SortByPriority(claims)

	want := []string{"breaking-contrarian", "breaking-confirms", "upcoming-high", "ongoing-low"}
	for i, id := range want {
		if claims[i].ClaimID != id {
			t.Errorf("position %d = %s, want %s", i, claims[i].ClaimID, id)
		}
	}
}

func TestIsHighAlert(t *testing.T) {
	cases := []struct {
		name  string
		claim model.Claim
		want  bool
	}{
		{"earnings event", model.Claim{EventType: model.EventEarnings, IsDescriptiveEvent: true}, true},
		{"org event", model.Claim{EventType: model.EventOrg, IsDescriptiveEvent: true}, true},
		{"earnings opinion only", model.Claim{EventType: model.EventEarnings, IsDescriptiveEvent: false}, false},
		{"market with delta", model.Claim{EventType: model.EventMarket, IsDescriptiveEvent: true, HasBeliefDelta: true}, true},
		{"market without delta", model.Claim{EventType: model.EventMarket, IsDescriptiveEvent: true, HasBeliefDelta: false}, false},
		{"product event", model.Claim{EventType: model.EventProduct, IsDescriptiveEvent: true, HasBeliefDelta: true}, false},
		{"no event", model.Claim{}, false},
	}

	for _, tc := range cases {
		if got := IsHighAlert(tc.claim); got != tc.want {
			t.Errorf("%s: IsHighAlert = %v, want %v", tc.name, got, tc.want)
		}
	}
}
