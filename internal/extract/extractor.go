// Package extract turns triaged chunks into atomic, sourced claims.
// The extractor describes; it never decides conviction. Judgment hooks
// (confidence, time sensitivity, belief pressure) are annotations for
// the reader, and every claim must carry a citation back to its
// document or it is rejected.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/nkarev/driftbrief/internal/llm"
	"github.com/nkarev/driftbrief/internal/model"
)

const systemPrompt = `You are a research analyst extracting atomic claims from sell-side research.
Your task: Convert the text into 1-2 challengeable bullet points with judgment annotations.

CRITICAL: You are DESCRIBING claims, not DECIDING importance. The reader will form their own conviction.

Output format (JSON):
{
  "bullets": ["First explicit assertion...", "Second assertion (optional)..."],
  "primary_ticker": "META" or null,
  "has_uncertainty": true/false,
  "confidence_level": "low" | "medium" | "high",
  "time_sensitivity": "breaking" | "upcoming" | "ongoing",
  "belief_pressure": "confirms_consensus" | "contradicts_consensus" | "contradicts_prior_assumptions" | "unclear",
  "event_type": "earnings" | "guidance" | "product" | "regulation" | "org" | "market" | "macro" | null,
  "is_descriptive_event": true/false,
  "has_belief_delta": true/false,
  "sector_implication": "one sentence" or null
}

FIELD DEFINITIONS:

1. bullets (1-2 max)
   - Must be EXPLICIT ASSERTIONS that can be verified or challenged
   - Good: "META ad revenue grew 28% YoY in Q4"
   - Bad: "META had strong performance" (too vague)
   - PRESERVE uncertainty language exactly: "may", "could", "estimates", "expects"
   - Include specific data: numbers, percentages, dates, price targets

2. confidence_level (how confident is the SOURCE, not you)
   - "high": Analyst states with conviction, uses definitive language
   - "medium": Analyst hedges somewhat, uses "likely", "probably"
   - "low": Analyst explicitly uncertain, uses "may", "could", "unclear"

3. time_sensitivity (when does this matter)
   - "breaking": New information, just announced, immediate relevance
   - "upcoming": Forward-looking catalyst, earnings date, product launch
   - "ongoing": Structural trend, long-term thesis, not time-bound

4. belief_pressure (how this relates to market expectations)
   - "confirms_consensus": Supports what Street already believes
   - "contradicts_consensus": Goes against prevailing view
   - "contradicts_prior_assumptions": Challenges the reader's likely mental model
   - "unclear": Not enough context to determine

5. event_type (what structurally happened, if anything)
   - "earnings": results, beats/misses, impairments, restatements
   - "guidance": guidance changes, preannouncements, revisions
   - "product": launches, recalls, significant pricing changes
   - "regulation": antitrust, litigation outcomes, regulatory approval/denial
   - "org": M&A, leadership changes, board changes, restructurings
   - "market": operational metrics, subscriber/user numbers, share shifts
   - "macro": rates, policy, economic data
   - null: the text is commentary with no concrete event

6. is_descriptive_event: true ONLY if the text reports something that
   concretely HAPPENED (announced, reported, filed), not analyst opinion
   about what might happen

7. has_belief_delta: true if the claim should shift what an informed
   reader believes (new number, surprise, reversal); false for
   restatements of known facts

8. sector_implication: if the claim has a second-order read for the
   broader TMT sector, state it in one sentence. null otherwise.

RULES:
- Do NOT rank importance (that's the reader's job)
- Do NOT summarize across multiple sources
- Do NOT add narrative or connecting language
- Do NOT strengthen or weaken the original assertion`

// Extractor runs the claim extraction pass
type Extractor struct {
	provider llm.Provider
	verbose  bool
}

// New creates an extractor backed by the given provider
func New(provider llm.Provider, verbose bool) *Extractor {
	return &Extractor{provider: provider, verbose: verbose}
}

// extractResponse is the model's JSON shape
type extractResponse struct {
	Bullets            []string `json:"bullets"`
	PrimaryTicker      string   `json:"primary_ticker"`
	HasUncertainty     bool     `json:"has_uncertainty"`
	ConfidenceLevel    string   `json:"confidence_level"`
	TimeSensitivity    string   `json:"time_sensitivity"`
	BeliefPressure     string   `json:"belief_pressure"`
	EventType          string   `json:"event_type"`
	IsDescriptiveEvent bool     `json:"is_descriptive_event"`
	HasBeliefDelta     bool     `json:"has_belief_delta"`
	SectorImplication  string   `json:"sector_implication"`
}

// Chunk extracts one claim from a triaged chunk. The claim's citation
// is built from the document and the chunk's page range, never from
// model output; a chunk whose document cannot be cited is rejected
// with model.ErrNoCitation.
func (e *Extractor) Chunk(ctx context.Context, chunk model.Chunk, clf model.Classification, doc model.Document) (model.Claim, error) {
	citation := buildCitation(doc, chunk)
	if !citation.Valid() {
		return model.Claim{}, fmt.Errorf("extract chunk %s: %w", chunk.ChunkID, model.ErrNoCitation)
	}

	resp, err := e.provider.Complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        buildUserPrompt(chunk, clf, doc),
		MaxTokens:   400,
		Temperature: 0,
		JSONOnly:    true,
	})
	if err != nil {
		return model.Claim{}, fmt.Errorf("extract chunk %s: %w", chunk.ChunkID, err)
	}

	var raw extractResponse
	if err := llm.DecodeJSON(resp.Content, &raw); err != nil {
		return model.Claim{}, fmt.Errorf("extract chunk %s: %w", chunk.ChunkID, err)
	}

	return e.normalize(chunk, clf, doc, citation, raw), nil
}

// normalize validates the model response and assembles the claim.
// Enum fields fall back to the neutral defaults rather than failing
// the chunk.
func (e *Extractor) normalize(chunk model.Chunk, clf model.Classification, doc model.Document, citation model.Citation, raw extractResponse) model.Claim {
	bullets := raw.Bullets
	if len(bullets) == 0 {
		// Model gave nothing usable; fall back to a truncated excerpt so
		// the chunk still surfaces with its citation
		bullets = []string{truncate(strings.TrimSpace(chunk.Text), 200)}
	}
	if len(bullets) > 2 {
		bullets = bullets[:2]
	}

	confidence := model.ConfidenceLevel(raw.ConfidenceLevel)
	switch confidence {
	case model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceHigh:
	default:
		confidence = model.ConfidenceMedium
	}

	timeSens := model.TimeSensitivity(raw.TimeSensitivity)
	switch timeSens {
	case model.TimeBreaking, model.TimeUpcoming, model.TimeOngoing:
	default:
		timeSens = model.TimeOngoing
	}

	pressure := model.BeliefPressure(raw.BeliefPressure)
	switch pressure {
	case model.ConfirmsConsensus, model.ContradictsConsensus, model.ContradictsPrior, model.PressureUnclear:
	default:
		pressure = model.PressureUnclear
	}

	// The classifier's event read wins when the extractor returns an
	// unknown type; both passes saw the same text
	eventType := validEventType(raw.EventType)
	if eventType == "" {
		eventType = clf.EventType
	}

	ticker := raw.PrimaryTicker
	if ticker == "" && len(clf.Tickers) > 0 {
		ticker = clf.Tickers[0]
	}

	return model.Claim{
		ClaimID:            claimID(doc, chunk),
		ChunkID:            chunk.ChunkID,
		Bullets:            bullets,
		Ticker:             ticker,
		Category:           clf.Category,
		ConfidenceLevel:    confidence,
		TimeSensitivity:    timeSens,
		BeliefPressure:     pressure,
		EventType:          eventType,
		IsDescriptiveEvent: raw.IsDescriptiveEvent,
		HasBeliefDelta:     raw.HasBeliefDelta,
		SectorImplication:  strings.TrimSpace(raw.SectorImplication),
		Citation:           citation,
		Excerpt:            truncate(strings.TrimSpace(chunk.Text), 500),
		ExtractedAt:        time.Now().UTC(),
		SourceType:         doc.SourceType,
	}
}

// Chunks extracts claims from parallel chunk/classification slices.
// A failed chunk is logged and skipped; extraction never aborts the run.
func (e *Extractor) Chunks(ctx context.Context, chunks []model.Chunk, clfs []model.Classification, doc model.Document) []model.Claim {
	var claims []model.Claim
	for i := range chunks {
		claim, err := e.Chunk(ctx, chunks[i], clfs[i], doc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "extract: skipping chunk %d/%d: %v\n", i+1, len(chunks), err)
			continue
		}
		claims = append(claims, claim)
	}
	if e.verbose {
		fmt.Fprintf(os.Stderr, "extract: %d/%d claims extracted\n", len(claims), len(chunks))
	}
	return claims
}

// buildCitation ties the claim to its document and page range
// claimID derives the claim identity from the document content hash
// and the chunk position. Stable across runs, so re-extracting the same
// day replaces history rows instead of duplicating them.
func claimID(doc model.Document, chunk model.Chunk) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", doc.ContentHash, chunk.Index)))
	return hex.EncodeToString(sum[:16])
}

func buildCitation(doc model.Document, chunk model.Chunk) model.Citation {
	return model.Citation{
		DocID:     doc.DocID,
		Source:    doc.Source,
		Analyst:   doc.Analyst,
		PageStart: chunk.PageStart,
		PageEnd:   chunk.PageEnd,
		Date:      doc.DatePublished,
	}
}

func buildUserPrompt(chunk model.Chunk, clf model.Classification, doc model.Document) string {
	var parts []string

	source := doc.Source
	if source == "" {
		source = "Unknown"
	}
	parts = append(parts, "Source: "+source)
	if doc.Analyst != "" {
		parts = append(parts, "Analyst: "+doc.Analyst)
	}
	if doc.DatePublished != "" {
		parts = append(parts, "Date: "+doc.DatePublished)
	}
	if chunk.PageStart > 0 {
		parts = append(parts, fmt.Sprintf("Page: %d", chunk.PageStart))
	}
	parts = append(parts, "")

	parts = append(parts, "Content type: "+string(clf.ContentType))
	parts = append(parts, "Category: "+string(clf.Category))
	if len(clf.Tickers) > 0 {
		parts = append(parts, "Tickers: "+strings.Join(clf.Tickers, ", "))
	}
	if clf.EventType != "" {
		parts = append(parts, "Event type: "+string(clf.EventType))
	}
	parts = append(parts, "")

	parts = append(parts, "Text to extract claims from:", strings.TrimSpace(chunk.Text))
	return strings.Join(parts, "\n")
}

func validEventType(s string) model.EventType {
	et := model.EventType(s)
	switch et {
	case model.EventEarnings, model.EventGuidance, model.EventProduct,
		model.EventRegulation, model.EventOrg, model.EventMarket, model.EventMacro:
		return et
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// SortByPriority orders claims for rendering: breaking before upcoming
// before ongoing, contrarian claims before confirmations within a tier,
// then higher source confidence first. Stable, so extraction order
// breaks remaining ties.
func SortByPriority(claims []model.Claim) {
	sort.SliceStable(claims, func(i, j int) bool {
		a, b := claims[i], claims[j]
		if a.TimeSensitivity.Rank() != b.TimeSensitivity.Rank() {
			return a.TimeSensitivity.Rank() < b.TimeSensitivity.Rank()
		}
		if a.BeliefPressure.Contrarian() != b.BeliefPressure.Contrarian() {
			return a.BeliefPressure.Contrarian()
		}
		return a.ConfidenceLevel.Rank() > b.ConfidenceLevel.Rank()
	})
}

// IsHighAlert reports whether a claim bypasses the per-ticker cap and
// the truncation policy. A protected event that concretely happened is
// always high alert; a market event additionally needs a belief delta.
func IsHighAlert(c model.Claim) bool {
	if model.ProtectedEventTypes[c.EventType] && c.IsDescriptiveEvent {
		return true
	}
	return c.EventType == model.EventMarket && c.IsDescriptiveEvent && c.HasBeliefDelta
}
