// Package triage is the volume kill step: deterministic relevance
// scoring, de-duplication, and capping so a day's intake fits the
// briefing budget. If everything survives, triage has failed.
package triage

import (
	"math"

	"github.com/nkarev/driftbrief/internal/model"
)

// Relevance policy weights. Intentionally lossy; the numbers encode
// what a TMT analyst reads first, not an objective importance measure.

var categoryWeights = map[model.Category]float64{
	model.CategoryTrackedTicker: 1.0, // direct coverage always wins
	model.CategoryTMTSector:     0.7,
	model.CategoryMacro:         0.5,
	model.CategoryIrrelevant:    0.0,
}

var subtopicWeights = map[string]float64{
	"cloud_enterprise_software":    1.0,
	"internet_digital_advertising": 0.85,
	"semiconductors_hardware":      0.8,
	"consumer_internet_media":      0.7,
	"telecom_infrastructure":       0.5,
}

var contentTypeWeights = map[model.ContentType]float64{
	model.ContentFact:           1.0,
	model.ContentForecast:       0.9,
	model.ContentRisk:           0.85,
	model.ContentInterpretation: 0.7,
}

var polarityWeights = map[model.Polarity]float64{
	model.PolarityPositive: 1.0,
	model.PolarityNegative: 1.0, // risk signals matter as much as good news
	model.PolarityMixed:    0.8,
	model.PolarityNeutral:  0.6,
}

// tickerWeight returns the highest priority weight across tickers
func tickerWeight(tickers []string, scope model.Scope) float64 {
	if len(tickers) == 0 {
		return 0.5 // sector/macro content
	}

	primary := make(map[string]bool, len(scope.PrimaryTickers))
	for _, t := range scope.PrimaryTickers {
		primary[t] = true
	}
	watchlist := make(map[string]bool, len(scope.WatchlistTickers))
	for _, t := range scope.WatchlistTickers {
		watchlist[t] = true
	}

	hasPrimary, hasWatchlist := false, false
	for _, t := range tickers {
		if primary[t] {
			hasPrimary = true
		}
		if watchlist[t] {
			hasWatchlist = true
		}
	}

	switch {
	case hasPrimary:
		return 1.0
	case hasWatchlist:
		return 0.7
	default:
		return 0.4 // off-coverage ticker
	}
}

// Score computes the relevance score for a classified chunk.
// Weighted sum over category, subtopic, content type, polarity, ticker
// priority and source credibility. Irrelevant is a hard zero.
func Score(clf model.Classification, scope model.Scope, source string) float64 {
	categoryScore := categoryWeights[clf.Category]
	if categoryScore == 0.0 {
		return 0.0
	}

	// Subtopic applies only to sector chunks; everything else gets a
	// neutral baseline
	subtopicScore := 0.8
	if clf.Category == model.CategoryTMTSector && clf.Subtopic != "" {
		if w, ok := subtopicWeights[clf.Subtopic]; ok {
			subtopicScore = w
		} else {
			subtopicScore = 0.5
		}
	}

	contentScore, ok := contentTypeWeights[clf.ContentType]
	if !ok {
		contentScore = 0.7
	}

	polarityScore, ok := polarityWeights[clf.Polarity]
	if !ok {
		polarityScore = 0.6
	}

	raw := categoryScore*0.30 +
		subtopicScore*0.20 +
		contentScore*0.15 +
		polarityScore*0.10 +
		tickerWeight(clf.Tickers, scope)*0.15 +
		scope.SourceCredibility(source)*0.10

	return math.Round(raw*1000) / 1000
}
