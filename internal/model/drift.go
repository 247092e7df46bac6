package model

// DriftType classifies a detected belief change between runs
type DriftType string

const (
	DriftConfidenceShift DriftType = "confidence_shift" // confidence crossed categories
	DriftBeliefFlip      DriftType = "belief_flip"      // confirms <-> contradicts
	DriftNewDisagreement DriftType = "new_disagreement" // previously aligned sources now split
	DriftResurgence      DriftType = "resurgence"       // subject back after an absent window
	DriftAttentionDecay  DriftType = "attention_decay"  // covered every recent window, none today
)

// DriftSeverity orders signals for rendering
type DriftSeverity string

const (
	SeverityHigh   DriftSeverity = "high"
	SeverityMedium DriftSeverity = "medium"
	SeverityLow    DriftSeverity = "low"
)

// Rank orders severity: high=0 sorts first
func (s DriftSeverity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 2
	}
	return 3
}

// DriftSignal is a comparison result between today's claims and history.
// Derived fresh each run; the analyst decides whether it matters.
type DriftSignal struct {
	Type        DriftType     `json:"type"`
	Ticker      string        `json:"ticker,omitempty"`
	Description string        `json:"description"` // what changed, factual not interpretive
	Severity    DriftSeverity `json:"severity"`

	TodayClaim  string `json:"today_claim,omitempty"`
	PriorClaim  string `json:"prior_claim,omitempty"`
	TodaySource string `json:"today_source,omitempty"`
	PriorSource string `json:"prior_source,omitempty"`
	TodayDate   string `json:"today_date,omitempty"`
	PriorDate   string `json:"prior_date,omitempty"`

	TodayConfidence ConfidenceLevel `json:"today_confidence,omitempty"`
	PriorConfidence ConfidenceLevel `json:"prior_confidence,omitempty"`
	TodayPressure   BeliefPressure  `json:"today_pressure,omitempty"`
	PriorPressure   BeliefPressure  `json:"prior_pressure,omitempty"`
}

// DriftReport is all signals for one briefing period
type DriftReport struct {
	Signals         []DriftSignal `json:"signals"`
	LookbackDays    int           `json:"lookback_days"`
	TodayClaimCount int           `json:"today_claim_count"`
	PriorClaimCount int           `json:"prior_claim_count"`
}

// ByTicker groups signals by ticker; untickered signals land under "General"
func (r DriftReport) ByTicker() map[string][]DriftSignal {
	grouped := make(map[string][]DriftSignal)
	for _, s := range r.Signals {
		key := s.Ticker
		if key == "" {
			key = "General"
		}
		grouped[key] = append(grouped[key], s)
	}
	return grouped
}

// HighSeverity returns only high-severity signals
func (r DriftReport) HighSeverity() []DriftSignal {
	var out []DriftSignal
	for _, s := range r.Signals {
		if s.Severity == SeverityHigh {
			out = append(out, s)
		}
	}
	return out
}
