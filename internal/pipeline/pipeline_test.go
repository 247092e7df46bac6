package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nkarev/driftbrief/internal/briefing"
	"github.com/nkarev/driftbrief/internal/classify"
	"github.com/nkarev/driftbrief/internal/extract"
	"github.com/nkarev/driftbrief/internal/history"
	"github.com/nkarev/driftbrief/internal/llm"
	"github.com/nkarev/driftbrief/internal/model"
	"github.com/nkarev/driftbrief/internal/synth"
	"github.com/nkarev/driftbrief/internal/triage"
)

// routedProvider answers by stage, keyed off the system prompt
type routedProvider struct {
	classifyJSON string
	extractJSON  string
	narrative    string
	calls        int
}

func (r *routedProvider) Name() string                         { return "routed" }
func (r *routedProvider) IsAvailable(ctx context.Context) bool { return true }

func (r *routedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	r.calls++
	switch {
	case strings.Contains(req.System, "document classifier"):
		return &llm.Response{Content: r.classifyJSON}, nil
	case strings.Contains(req.System, "extracting atomic claims"):
		return &llm.Response{Content: r.extractJSON}, nil
	default:
		return &llm.Response{Content: r.narrative}, nil
	}
}

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	tmp := t.TempDir()

	cfg := model.DefaultConfig()
	cfg.Collect.Feeds = nil
	cfg.Collect.InboxDir = filepath.Join(tmp, "inbox")
	cfg.HistoryPath = filepath.Join(tmp, "history.db")
	cfg.Briefing.OutputDir = filepath.Join(tmp, "briefings")
	cfg.Cache.Enabled = false
	return cfg
}

func dropDocument(t *testing.T, dir, name, doc string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testPipeline(t *testing.T, cfg *model.Config, provider llm.Provider) *Pipeline {
	t.Helper()
	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		t.Fatal(err)
	}
	p := &Pipeline{
		cfg:        cfg,
		provider:   provider,
		store:      store,
		classifier: classify.New(provider, cfg.Scope, false),
		triager:    triage.New(cfg.Scope, cfg.Triage.Threshold, cfg.Triage.MaxChunks),
		extractor:  extract.New(provider, false),
		synth:      synth.New(provider, cfg.Scope, 0, false),
		renderer:   briefing.New(cfg.Scope, cfg.Briefing),
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestNewRequiresProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = ""

	if _, err := New(cfg); !errors.Is(err, model.ErrNoProvider) {
		t.Fatalf("New without provider = %v, want ErrNoProvider", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scope.PrimaryTickers = nil
	cfg.Scope.WatchlistTickers = nil

	if _, err := New(cfg); !errors.Is(err, model.ErrNoTickers) {
		t.Fatalf("New with empty whitelist = %v, want ErrNoTickers", err)
	}
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	dropDocument(t, cfg.Collect.InboxDir, "jefferies.json", `{
		"source": "jefferies",
		"source_type": "sellside",
		"title": "META 4Q Preview",
		"analyst": "Brent Thill",
		"date_published": "2026-02-04",
		"text": "META reported Q4 advertising revenue of $48.2B, up 22% YoY, beating consensus of $46.5B. Reels monetization reached parity with Feed ads ahead of schedule."
	}`)

	provider := &routedProvider{
		classifyJSON: `{"category":"tracked_ticker","tickers":["META"],"content_type":"fact","polarity":"positive","event_type":"earnings"}`,
		extractJSON: `{"bullets":["META Q4 ad revenue of $48.2B beat consensus by 3.7%"],
			"primary_ticker":"META","confidence_level":"high","time_sensitivity":"breaking",
			"belief_pressure":"contradicts_consensus","event_type":"earnings",
			"is_descriptive_event":true,"has_belief_delta":true}`,
		narrative: "Jefferies reports a clean beat on META advertising revenue.",
	}
	p := testPipeline(t, cfg, provider)

	date := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	stats, err := p.Run(context.Background(), date)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.Documents != 1 {
		t.Errorf("Documents = %d, want 1", stats.Documents)
	}
	if stats.Chunks == 0 || stats.Claims == 0 {
		t.Errorf("stats = %+v, want chunks and claims", stats)
	}
	if stats.OutputPath == "" {
		t.Fatal("no output path")
	}

	data, err := os.ReadFile(stats.OutputPath)
	if err != nil {
		t.Fatalf("read briefing: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		"# Daily Briefing — February 04, 2026",
		"## 1. Objective Breaking News",
		"META Q4 ad revenue of $48.2B beat consensus by 3.7%",
		"Jefferies, Brent Thill",
		"## 4. Longitudinal Delta Detection",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("briefing missing %q", want)
		}
	}
	if !strings.Contains(filepath.Base(stats.OutputPath), "briefing-2026-02-04") {
		t.Errorf("output file = %s, want date-stamped name", stats.OutputPath)
	}

	// Claims landed in history
	records, err := p.store.ByDate("2026-02-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != stats.Claims {
		t.Errorf("history has %d records, run produced %d claims", len(records), stats.Claims)
	}
}

func TestRerunningSameDayDoesNotDuplicateHistory(t *testing.T) {
	cfg := testConfig(t)
	dropDocument(t, cfg.Collect.InboxDir, "jefferies.json", `{
		"source": "jefferies",
		"source_type": "sellside",
		"date_published": "2026-02-04",
		"text": "META reported Q4 advertising revenue of $48.2B, up 22% YoY, beating consensus of $46.5B."
	}`)

	provider := &routedProvider{
		classifyJSON: `{"category":"tracked_ticker","tickers":["META"],"content_type":"fact","polarity":"positive","event_type":"earnings"}`,
		extractJSON: `{"bullets":["META Q4 ad revenue beat consensus"],
			"primary_ticker":"META","confidence_level":"high","time_sensitivity":"breaking",
			"belief_pressure":"confirms_consensus","event_type":"earnings",
			"is_descriptive_event":true,"has_belief_delta":true}`,
		narrative: "Clean beat on META.",
	}
	p := testPipeline(t, cfg, provider)

	date := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	first, err := p.Run(context.Background(), date)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := p.Run(context.Background(), date)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if first.Claims != second.Claims {
		t.Fatalf("claims = %d then %d, want identical re-run", first.Claims, second.Claims)
	}

	records, err := p.store.ByDate("2026-02-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != second.Claims {
		t.Errorf("history rows for the day = %d after re-run, want %d", len(records), second.Claims)
	}

	st, err := p.store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalClaims != second.Claims {
		t.Errorf("TotalClaims = %d after re-run, want %d", st.TotalClaims, second.Claims)
	}
}

func TestRunFeedsHistoryIntoDrift(t *testing.T) {
	cfg := testConfig(t)
	dropDocument(t, cfg.Collect.InboxDir, "day2.json", `{
		"source": "jefferies",
		"source_type": "sellside",
		"date_published": "2026-02-05",
		"text": "CRWD appears to be ceding enterprise endpoint share to MSFT Defender, reversing the prior leadership view."
	}`)

	provider := &routedProvider{
		classifyJSON: `{"category":"tracked_ticker","tickers":["CRWD"],"content_type":"interpretation","polarity":"negative","event_type":"market"}`,
		extractJSON: `{"bullets":["CRWD ceding endpoint share to MSFT Defender"],
			"primary_ticker":"CRWD","confidence_level":"high","time_sensitivity":"ongoing",
			"belief_pressure":"contradicts_prior_assumptions","event_type":"market",
			"is_descriptive_event":false,"has_belief_delta":true}`,
		narrative: "Coverage on CRWD turned cautious.",
	}
	p := testPipeline(t, cfg, provider)

	// Seed the prior day with a confirming claim so today's reversal flips
	seed := model.Claim{
		ClaimID:         "prior-crwd",
		Ticker:          "CRWD",
		Category:        model.CategoryTrackedTicker,
		Bullets:         []string{"CRWD endpoint leadership intact"},
		ConfidenceLevel: model.ConfidenceHigh,
		TimeSensitivity: model.TimeOngoing,
		BeliefPressure:  model.ConfirmsConsensus,
		Citation:        model.Citation{DocID: "d0", Source: "jefferies", Date: "2026-02-04"},
		SourceType:      model.SourceSellSide,
	}
	if _, err := p.store.Append([]model.Claim{seed}, "2026-02-04"); err != nil {
		t.Fatal(err)
	}

	stats, err := p.Run(context.Background(), time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.DriftSignals == 0 {
		t.Error("reversal against stored history produced no drift signals")
	}

	data, err := os.ReadFile(stats.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "belief_flip") {
		t.Error("briefing drift section missing the belief flip")
	}
}

func TestRunEmptyInboxStillWritesBriefing(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.Collect.InboxDir, 0o755); err != nil {
		t.Fatal(err)
	}

	provider := &routedProvider{narrative: "nothing today"}
	p := testPipeline(t, cfg, provider)

	stats, err := p.Run(context.Background(), time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Claims != 0 {
		t.Errorf("Claims = %d, want 0", stats.Claims)
	}
	if !stats.Thin {
		t.Error("zero-claim day not marked thin")
	}

	data, err := os.ReadFile(stats.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "No Update") {
		t.Error("silent day briefing missing No Update lines")
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times with nothing to process", provider.calls)
	}
}

func TestSourcesFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Collect.Feeds = []model.FeedConfig{
		{Name: "stratechery", URL: "https://example.com/feed", SourceType: model.SourceSubstack},
	}
	p := &Pipeline{cfg: cfg}

	sources := p.sources()
	if len(sources) != 2 {
		t.Fatalf("sources = %d, want feed + inbox", len(sources))
	}
	if sources[0].Name() != "stratechery" {
		t.Errorf("first source = %q", sources[0].Name())
	}

	cfg.Collect.InboxDir = ""
	if got := len(p.sources()); got != 1 {
		t.Errorf("sources without inbox = %d, want 1", got)
	}
}
