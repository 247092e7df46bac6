package history

import (
	"path/filepath"
	"testing"

	"github.com/nkarev/driftbrief/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "claims.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testClaim(id, ticker string) model.Claim {
	return model.Claim{
		ClaimID:            id,
		ChunkID:            "chunk-" + id,
		Bullets:            []string{ticker + " ad revenue grew 28% YoY"},
		Ticker:             ticker,
		Category:           model.CategoryTrackedTicker,
		ConfidenceLevel:    model.ConfidenceHigh,
		TimeSensitivity:    model.TimeOngoing,
		BeliefPressure:     model.ConfirmsConsensus,
		EventType:          model.EventEarnings,
		IsDescriptiveEvent: true,
		Citation: model.Citation{
			DocID: "doc-1", Source: "jefferies", Analyst: "Brent Thill",
			PageStart: 2, Date: "2026-02-04",
		},
		SourceType: model.SourceSellSide,
	}
}

func TestAppendAndRoundTrip(t *testing.T) {
	s := openTestStore(t)

	n, err := s.Append([]model.Claim{testClaim("c1", "META")}, "2026-02-04")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("stored %d, want 1", n)
	}

	records, err := s.ForTicker("META", 7, "2026-02-04", false)
	if err != nil {
		t.Fatalf("ForTicker() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}

	got := records[0].Claim
	want := testClaim("c1", "META")
	if got.Bullets[0] != want.Bullets[0] {
		t.Errorf("Bullets = %v, want %v", got.Bullets, want.Bullets)
	}
	if got.ConfidenceLevel != model.ConfidenceHigh || got.BeliefPressure != model.ConfirmsConsensus {
		t.Errorf("judgment hooks lost: %+v", got)
	}
	if got.EventType != model.EventEarnings || !got.IsDescriptiveEvent {
		t.Errorf("event fields lost: %+v", got)
	}
	if got.Citation != want.Citation {
		t.Errorf("Citation = %+v, want %+v", got.Citation, want.Citation)
	}
	if records[0].DateStored != "2026-02-04" {
		t.Errorf("DateStored = %q", records[0].DateStored)
	}
}

func TestAppendSameDayReplacesNotDuplicates(t *testing.T) {
	s := openTestStore(t)

	claims := []model.Claim{testClaim("c1", "META")}
	for i := 0; i < 3; i++ {
		if _, err := s.Append(claims, "2026-02-04"); err != nil {
			t.Fatal(err)
		}
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalClaims != 1 {
		t.Errorf("TotalClaims = %d, want 1 after same-day re-runs", st.TotalClaims)
	}
}

func TestForTickerExcludesToday(t *testing.T) {
	s := openTestStore(t)

	s.Append([]model.Claim{testClaim("old", "META")}, "2026-02-01")
	s.Append([]model.Claim{testClaim("new", "META")}, "2026-02-04")

	prior, err := s.ForTicker("META", 7, "2026-02-04", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(prior) != 1 || prior[0].Claim.ClaimID != "old" {
		t.Errorf("prior = %+v, want only the backdated claim", prior)
	}

	all, err := s.ForTicker("META", 7, "2026-02-04", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}
}

func TestWindowBoundsLookback(t *testing.T) {
	s := openTestStore(t)

	s.Append([]model.Claim{testClaim("stale", "AMZN")}, "2026-01-01")
	s.Append([]model.Claim{testClaim("recent", "CRWD")}, "2026-02-02")
	s.Append([]model.Claim{testClaim("today", "META")}, "2026-02-04")

	records, err := s.Window(7, "2026-02-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Claim.ClaimID != "recent" {
		t.Errorf("window = %+v, want only the in-window prior claim", records)
	}
}

func TestByDateAndStats(t *testing.T) {
	s := openTestStore(t)

	s.Append([]model.Claim{testClaim("a", "META"), testClaim("b", "CRWD")}, "2026-02-04")
	s.Append([]model.Claim{testClaim("c", "META")}, "2026-02-05")

	day, err := s.ByDate("2026-02-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(day) != 2 {
		t.Errorf("ByDate = %d, want 2", len(day))
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalClaims != 3 || st.UniqueTickers != 2 || st.DaysTracked != 2 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestRecentTickers(t *testing.T) {
	s := openTestStore(t)

	s.Append([]model.Claim{testClaim("a", "META"), testClaim("b", "CRWD")}, "2026-02-02")
	s.Append([]model.Claim{testClaim("c", "GOOGL")}, "2026-02-04")

	tickers, err := s.RecentTickers(7, "2026-02-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(tickers) != 2 || tickers[0] != "CRWD" || tickers[1] != "META" {
		t.Errorf("RecentTickers = %v, want [CRWD META] (today excluded)", tickers)
	}
}

func TestForSource(t *testing.T) {
	s := openTestStore(t)

	jef := testClaim("j1", "META")
	ms := testClaim("m1", "META")
	ms.Citation.Source = "morgan_stanley"
	s.Append([]model.Claim{jef, ms}, "2026-02-04")

	records, err := s.ForSource("morgan_stanley", 7, "2026-02-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Claim.ClaimID != "m1" {
		t.Errorf("ForSource = %+v, want only the morgan_stanley claim", records)
	}
}
