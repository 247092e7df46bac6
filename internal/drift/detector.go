// Package drift surfaces belief changes between today's claims and the
// stored history. Change over state: a claim matters here only relative
// to what was said before. No model calls; every signal is a
// deterministic comparison of claim metadata.
package drift

import (
	"fmt"
	"sort"

	"github.com/nkarev/driftbrief/internal/history"
	"github.com/nkarev/driftbrief/internal/model"
)

// Thresholds for the confidence detector, on the low=0 / medium=1 /
// high=2 scale
const (
	confidenceShiftMin  = 0.5
	confidenceShiftHigh = 1.0
)

// minGroupSize is how many claims a ticker needs before its appearance
// or disappearance counts as a signal
const minGroupSize = 2

// Detect compares today's claims against the prior window and returns
// every drift signal, highest severity first
func Detect(today []model.Claim, prior []history.Record, date string, lookbackDays int) model.DriftReport {
	uniquePrior := dedupe(prior)

	todayBy := groupClaims(today)
	priorBy := groupRecords(uniquePrior)

	var signals []model.DriftSignal
	signals = append(signals, confidenceShifts(todayBy, priorBy, date)...)
	signals = append(signals, beliefFlips(todayBy, priorBy, date)...)
	signals = append(signals, newDisagreements(todayBy, priorBy, date)...)
	signals = append(signals, resurgences(todayBy, priorBy, date, lookbackDays)...)
	signals = append(signals, attentionDecay(todayBy, priorBy, date)...)

	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Severity.Rank() < signals[j].Severity.Rank()
	})

	return model.DriftReport{
		Signals:         signals,
		LookbackDays:    lookbackDays,
		TodayClaimCount: len(today),
		PriorClaimCount: len(uniquePrior),
	}
}

// confidenceShifts flags tickers whose average source confidence moved
// by half a level or more
func confidenceShifts(today map[string][]model.Claim, prior map[string][]history.Record, date string) []model.DriftSignal {
	var signals []model.DriftSignal

	for _, ticker := range sortedKeys(today) {
		priorGroup, ok := prior[ticker]
		if !ok {
			continue
		}
		todayGroup := today[ticker]

		diff := avgConfidence(todayGroup) - avgConfidenceRecords(priorGroup)
		if abs(diff) < confidenceShiftMin {
			continue
		}

		direction := "hardening"
		if diff < 0 {
			direction = "softening"
		}
		severity := model.SeverityMedium
		if abs(diff) >= confidenceShiftHigh {
			severity = model.SeverityHigh
		}

		todayRep, priorRep := todayGroup[0], priorGroup[0]
		signals = append(signals, model.DriftSignal{
			Type:   model.DriftConfidenceShift,
			Ticker: ticker,
			Description: fmt.Sprintf("Confidence %s on %s: sources moved from %s to %s",
				direction, ticker, priorRep.Claim.ConfidenceLevel, todayRep.ConfidenceLevel),
			Severity:        severity,
			TodayClaim:      todayRep.Text(),
			PriorClaim:      priorRep.Claim.Text(),
			TodaySource:     todayRep.CitationString(),
			PriorSource:     priorRep.Claim.CitationString(),
			TodayDate:       date,
			PriorDate:       priorRep.DateStored,
			TodayConfidence: todayRep.ConfidenceLevel,
			PriorConfidence: priorRep.Claim.ConfidenceLevel,
		})
	}
	return signals
}

// beliefFlips flags tickers whose dominant belief pressure reversed
// direction against the prior period
func beliefFlips(today map[string][]model.Claim, prior map[string][]history.Record, date string) []model.DriftSignal {
	var signals []model.DriftSignal

	for _, ticker := range sortedKeys(today) {
		priorGroup, ok := prior[ticker]
		if !ok {
			continue
		}
		todayGroup := today[ticker]

		todayDominant := dominantDirection(pressures(todayGroup))
		priorDominant := dominantDirection(pressuresRecords(priorGroup))
		if todayDominant == priorDominant || todayDominant == "neutral" || priorDominant == "neutral" {
			continue
		}

		todayRep, priorRep := todayGroup[0], priorGroup[0]
		signals = append(signals, model.DriftSignal{
			Type:          model.DriftBeliefFlip,
			Ticker:        ticker,
			Description:   fmt.Sprintf("Belief flip on %s: was %s, now %s", ticker, priorDominant, todayDominant),
			Severity:      model.SeverityHigh,
			TodayClaim:    todayRep.Text(),
			PriorClaim:    priorRep.Claim.Text(),
			TodaySource:   todayRep.CitationString(),
			PriorSource:   priorRep.Claim.CitationString(),
			TodayDate:     date,
			PriorDate:     priorRep.DateStored,
			TodayPressure: todayRep.BeliefPressure,
			PriorPressure: priorRep.Claim.BeliefPressure,
		})
	}
	return signals
}

// newDisagreements flags tickers where today's sources split between
// confirming and contradicting, and the prior period did not
func newDisagreements(today map[string][]model.Claim, prior map[string][]history.Record, date string) []model.DriftSignal {
	var signals []model.DriftSignal

	for _, ticker := range sortedKeys(today) {
		todayGroup := today[ticker]
		if len(todayGroup) < minGroupSize {
			continue
		}
		if !hasSplit(pressures(todayGroup)) {
			continue
		}
		if hasSplit(pressuresRecords(prior[ticker])) {
			continue // disagreement is not new
		}

		var confirming, contradicting *model.Claim
		for i := range todayGroup {
			c := &todayGroup[i]
			switch {
			case c.BeliefPressure == model.ConfirmsConsensus && confirming == nil:
				confirming = c
			case c.BeliefPressure.Contrarian() && contradicting == nil:
				contradicting = c
			}
		}

		signals = append(signals, model.DriftSignal{
			Type:        model.DriftNewDisagreement,
			Ticker:      ticker,
			Description: fmt.Sprintf("New disagreement on %s: sources now split", ticker),
			Severity:    model.SeverityHigh,
			TodayClaim: fmt.Sprintf("Confirms: %s vs Contradicts: %s",
				clip(confirming.Text(), 60), clip(contradicting.Text(), 60)),
			TodaySource: confirming.CitationString() + " vs " + contradicting.CitationString(),
			TodayDate:   date,
		})
	}
	return signals
}

// resurgences flags tickers with real coverage today after a silent
// prior window
func resurgences(today map[string][]model.Claim, prior map[string][]history.Record, date string, lookbackDays int) []model.DriftSignal {
	var signals []model.DriftSignal

	for _, ticker := range sortedKeys(today) {
		todayGroup := today[ticker]
		if len(prior[ticker]) > 0 || len(todayGroup) < minGroupSize {
			continue
		}

		rep := todayGroup[0]
		signals = append(signals, model.DriftSignal{
			Type:   model.DriftResurgence,
			Ticker: ticker,
			Description: fmt.Sprintf("%s: %d claims today, absent from prior %d days",
				ticker, len(todayGroup), lookbackDays),
			Severity:    model.SeverityMedium,
			TodayClaim:  rep.Text(),
			TodaySource: rep.CitationString(),
			TodayDate:   date,
		})
	}
	return signals
}

// attentionDecay flags tickers that were actively discussed in the
// prior window and have no coverage today
func attentionDecay(today map[string][]model.Claim, prior map[string][]history.Record, date string) []model.DriftSignal {
	var signals []model.DriftSignal

	for _, ticker := range sortedKeysRecords(prior) {
		if _, covered := today[ticker]; covered {
			continue
		}
		priorGroup := prior[ticker]
		if len(priorGroup) < minGroupSize {
			continue
		}

		rep := priorGroup[0]
		signals = append(signals, model.DriftSignal{
			Type:        model.DriftAttentionDecay,
			Ticker:      ticker,
			Description: fmt.Sprintf("%s: %d claims in prior period, none today", ticker, len(priorGroup)),
			Severity:    model.SeverityLow,
			PriorClaim:  rep.Claim.Text(),
			PriorSource: rep.Claim.CitationString(),
			TodayDate:   date,
			PriorDate:   rep.DateStored,
		})
	}
	return signals
}

func dedupe(records []history.Record) []history.Record {
	seen := make(map[string]bool, len(records))
	var out []history.Record
	for _, r := range records {
		key := r.Claim.ClaimID + "@" + r.DateStored
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func groupClaims(claims []model.Claim) map[string][]model.Claim {
	grouped := make(map[string][]model.Claim)
	for _, c := range claims {
		if c.Ticker != "" {
			grouped[c.Ticker] = append(grouped[c.Ticker], c)
		}
	}
	return grouped
}

func groupRecords(records []history.Record) map[string][]history.Record {
	grouped := make(map[string][]history.Record)
	for _, r := range records {
		if r.Claim.Ticker != "" {
			grouped[r.Claim.Ticker] = append(grouped[r.Claim.Ticker], r)
		}
	}
	return grouped
}

// sortedKeys keeps detector output deterministic across runs
func sortedKeys(m map[string][]model.Claim) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysRecords(m map[string][]history.Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func avgConfidence(claims []model.Claim) float64 {
	sum := 0
	for _, c := range claims {
		sum += c.ConfidenceLevel.Rank()
	}
	return float64(sum) / float64(len(claims))
}

func avgConfidenceRecords(records []history.Record) float64 {
	sum := 0
	for _, r := range records {
		sum += r.Claim.ConfidenceLevel.Rank()
	}
	return float64(sum) / float64(len(records))
}

func pressures(claims []model.Claim) []model.BeliefPressure {
	out := make([]model.BeliefPressure, len(claims))
	for i, c := range claims {
		out[i] = c.BeliefPressure
	}
	return out
}

func pressuresRecords(records []history.Record) []model.BeliefPressure {
	out := make([]model.BeliefPressure, len(records))
	for i, r := range records {
		out[i] = r.Claim.BeliefPressure
	}
	return out
}

// dominantDirection maps a pressure set to its majority direction.
// Contrarian pressures count as negative, confirmation as positive.
func dominantDirection(ps []model.BeliefPressure) string {
	counts := map[string]int{}
	for _, p := range ps {
		switch {
		case p == model.ConfirmsConsensus:
			counts["positive"]++
		case p.Contrarian():
			counts["negative"]++
		default:
			counts["neutral"]++
		}
	}

	dominant, best := "neutral", 0
	for _, dir := range []string{"positive", "negative", "neutral"} {
		if counts[dir] > best {
			dominant, best = dir, counts[dir]
		}
	}
	return dominant
}

// hasSplit reports whether a pressure set contains both a confirmation
// and a contradiction
func hasSplit(ps []model.BeliefPressure) bool {
	confirms, contradicts := false, false
	for _, p := range ps {
		if p == model.ConfirmsConsensus {
			confirms = true
		}
		if p.Contrarian() {
			contradicts = true
		}
	}
	return confirms && contradicts
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
