package model

import (
	"fmt"
	"strings"
	"time"
)

// Category routes a chunk to a briefing section. Consumers must handle
// every value exhaustively; the downgrade and high-alert rules depend on it.
type Category string

const (
	CategoryTrackedTicker Category = "tracked_ticker" // about a whitelisted ticker
	CategoryTMTSector     Category = "tmt_sector"     // sector-level, no single tracked ticker
	CategoryMacro         Category = "macro"          // economic/geopolitical indicators
	CategoryIrrelevant    Category = "irrelevant"     // discarded before extraction
)

// Valid reports whether c is one of the four known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryTrackedTicker, CategoryTMTSector, CategoryMacro, CategoryIrrelevant:
		return true
	}
	return false
}

// ContentType describes the epistemic shape of a chunk
type ContentType string

const (
	ContentFact           ContentType = "fact"
	ContentInterpretation ContentType = "interpretation"
	ContentForecast       ContentType = "forecast"
	ContentRisk           ContentType = "risk"
)

// Polarity is the directional tone of a chunk
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityNeutral  Polarity = "neutral"
	PolarityMixed    Polarity = "mixed"
)

// Classification is the classifier gate's output for one chunk
type Classification struct {
	ChunkID     string      `json:"chunk_id"`
	Category    Category    `json:"category"`
	Tickers     []string    `json:"tickers,omitempty"`  // whitelisted tickers mentioned
	Subtopic    string      `json:"subtopic,omitempty"` // set when Category == tmt_sector
	ContentType ContentType `json:"content_type"`
	Polarity    Polarity    `json:"polarity"`
	// EventType carries the model's event read so the protected-event
	// override can be enforced after the fact
	EventType EventType `json:"event_type,omitempty"`
}

// Protected reports whether the chunk describes an event that must
// never be dropped as irrelevant
func (c Classification) Protected() bool {
	return ProtectedEventTypes[c.EventType]
}

// ConfidenceLevel reflects the SOURCE's stated confidence, not ours
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// Rank orders confidence for comparison: low=0, medium=1, high=2
func (c ConfidenceLevel) Rank() int {
	switch c {
	case ConfidenceLow:
		return 0
	case ConfidenceMedium:
		return 1
	case ConfidenceHigh:
		return 2
	}
	return 1
}

// TimeSensitivity says when a claim matters
type TimeSensitivity string

const (
	TimeBreaking TimeSensitivity = "breaking" // just announced, immediate
	TimeUpcoming TimeSensitivity = "upcoming" // forward-looking catalyst
	TimeOngoing  TimeSensitivity = "ongoing"  // structural, not time-bound
)

// Rank orders time sensitivity for the priority sort: breaking=0 sorts first
func (t TimeSensitivity) Rank() int {
	switch t {
	case TimeBreaking:
		return 0
	case TimeUpcoming:
		return 1
	case TimeOngoing:
		return 2
	}
	return 3
}

// BeliefPressure relates a claim to the presumed prior consensus
type BeliefPressure string

const (
	ConfirmsConsensus    BeliefPressure = "confirms_consensus"
	ContradictsConsensus BeliefPressure = "contradicts_consensus"
	ContradictsPrior     BeliefPressure = "contradicts_prior_assumptions"
	PressureUnclear      BeliefPressure = "unclear"
)

// Contrarian reports whether the claim pushes against consensus or priors
func (b BeliefPressure) Contrarian() bool {
	return b == ContradictsConsensus || b == ContradictsPrior
}

// EventType classifies what structurally happened
type EventType string

const (
	EventEarnings   EventType = "earnings"   // results, beats/misses, restatements
	EventGuidance   EventType = "guidance"   // guidance changes, preannouncements
	EventProduct    EventType = "product"    // launches, recalls, pricing changes
	EventRegulation EventType = "regulation" // antitrust, litigation, approvals
	EventOrg        EventType = "org"        // M&A, leadership, restructurings
	EventMarket     EventType = "market"     // operational metrics, share shifts
	EventMacro      EventType = "macro"
)

// ProtectedEventTypes always surface in the briefing, never filtered.
// Enforced post-hoc on both the classifier and the renderer cap.
var ProtectedEventTypes = map[EventType]bool{
	EventEarnings:   true,
	EventGuidance:   true,
	EventOrg:        true,
	EventRegulation: true,
}

// Citation ties a claim back to its document and page range.
// A claim with no traceable origin is invalid.
type Citation struct {
	DocID     string `json:"doc_id"`
	Source    string `json:"source"`            // firm key
	Analyst   string `json:"analyst,omitempty"` // source author
	PageStart int    `json:"page_start,omitempty"`
	PageEnd   int    `json:"page_end,omitempty"`
	Date      string `json:"date,omitempty"` // YYYY-MM-DD
}

// Valid reports whether the citation resolves to a document
func (c Citation) Valid() bool {
	return c.DocID != "" && c.Source != ""
}

// Claim is the central unit of value: an atomic, sourced, challengeable
// assertion. Immutable once extracted; appended to history, never purged.
type Claim struct {
	ClaimID  string   `json:"claim_id"`
	ChunkID  string   `json:"chunk_id"`
	Bullets  []string `json:"bullets"` // 1-2 explicit assertions
	Ticker   string   `json:"ticker,omitempty"`
	Category Category `json:"category"`

	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	TimeSensitivity TimeSensitivity `json:"time_sensitivity"`
	BeliefPressure  BeliefPressure  `json:"belief_pressure"`

	EventType          EventType `json:"event_type"`
	IsDescriptiveEvent bool      `json:"is_descriptive_event"` // something concretely happened
	HasBeliefDelta     bool      `json:"has_belief_delta"`     // shifts what the reader should believe
	SectorImplication  string    `json:"sector_implication,omitempty"`

	Citation    Citation   `json:"citation"`
	Excerpt     string     `json:"excerpt,omitempty"` // original source prose
	ExtractedAt time.Time  `json:"extracted_at"`
	SourceType  SourceType `json:"source_type"`
}

// Text returns the primary assertion
func (c Claim) Text() string {
	if len(c.Bullets) == 0 {
		return ""
	}
	return c.Bullets[0]
}

// CitationString formats the citation for rendering,
// e.g. "Jefferies, Brent Thill, pp.2-3, 2026-01-25"
func (c Claim) CitationString() string {
	parts := []string{titleCase(c.Citation.Source)}
	if c.Citation.Analyst != "" {
		parts = append(parts, c.Citation.Analyst)
	}
	if c.Citation.PageStart > 0 {
		if c.Citation.PageEnd > c.Citation.PageStart {
			parts = append(parts, fmt.Sprintf("pp.%d-%d", c.Citation.PageStart, c.Citation.PageEnd))
		} else {
			parts = append(parts, fmt.Sprintf("p.%d", c.Citation.PageStart))
		}
	}
	if c.Citation.Date != "" {
		parts = append(parts, c.Citation.Date)
	}
	return strings.Join(parts, ", ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
