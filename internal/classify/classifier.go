// Package classify routes chunks into briefing categories with a cheap
// LLM pass. The model proposes; deterministic post-processing disposes:
// ticker whitelisting, the tracked-ticker downgrade, and the protected
// event override are pure functions applied to every response.
package classify

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/nkarev/driftbrief/internal/llm"
	"github.com/nkarev/driftbrief/internal/model"
)

// Subtopics is the fixed TMT sub-topic set
var Subtopics = []string{
	"cloud_enterprise_software",
	"internet_digital_advertising",
	"semiconductors_hardware",
	"telecom_infrastructure",
	"consumer_internet_media",
}

// defaultSubtopic is the safe assignment when the model returns an
// unknown sub-topic for a tmt_sector chunk
const defaultSubtopic = "consumer_internet_media"

const systemPromptTemplate = `You are a financial document classifier. Classify the given text chunk into exactly one category.

Output ONLY valid JSON with these fields:

- category: one of (tracked_ticker, tmt_sector, macro, irrelevant)
  - tracked_ticker: Chunk discusses a specific stock being tracked. Tracked tickers: %s
  - tmt_sector: Chunk discusses TMT sector-level trends, themes, or developments not tied to a single tracked ticker
  - macro: Chunk discusses macroeconomic or geopolitical factors (e.g. interest rates, unemployment, tariffs, trade policy, consumer confidence, elections, GDP, inflation)
  - irrelevant: Chunk is about non-TMT sectors, boilerplate disclosures, or has no actionable content

- tickers: array of tracked stock tickers discussed (e.g. ["META", "GOOGL"]). Only include tickers from the tracked list above. Empty array if none.

- tmt_subtopic: if category is tmt_sector, one of (cloud_enterprise_software, internet_digital_advertising, semiconductors_hardware, telecom_infrastructure, consumer_internet_media). null otherwise.
  - cloud_enterprise_software: Cloud computing, SaaS, enterprise apps, developer tools, AI agents, LLMs, coding tools
  - internet_digital_advertising: Digital ads, ad tech, social media platforms, programmatic
  - semiconductors_hardware: Chips, processors, GPU, data centers, devices, AI inference hardware
  - telecom_infrastructure: 5G, wireless, broadband, towers, fiber, spectrum
  - consumer_internet_media: Streaming, gaming, e-commerce, consumer apps, content

- content_type: one of (fact, interpretation, forecast, risk)
  - fact: verifiable data points, metrics, historical events
  - interpretation: analyst opinions, assessments, explanations
  - forecast: predictions about future performance
  - risk: potential negative factors, concerns, warnings

- polarity: one of (positive, negative, neutral, mixed)

- event_type: one of (earnings, guidance, product, regulation, org, market, macro) if the chunk announces or describes a concrete event, null otherwise

Rules:
1. Output ONLY the JSON object, no markdown, no explanation
2. A chunk about a tracked ticker should be tracked_ticker even if it also has sector implications
3. Extract actual tickers mentioned. Only tag tickers from the tracked list
4. Boilerplate (disclosures, disclaimers, page headers/footers) is irrelevant
5. Non-TMT sectors (healthcare, energy, industrials, consumer staples, real estate, etc.) are irrelevant
6. AI, LLMs, developer tools, software disruption, chip performance, and enterprise tech are ALWAYS tmt_sector. Do not mark these irrelevant even if no tracked ticker is named
7. When genuinely uncertain between tmt_sector and irrelevant, prefer tmt_sector
8. NEVER classify as irrelevant if the chunk announces or describes ANY of the following for a named company:
   - Earnings results, revenue/EPS beats or misses, impairments, write-downs, restatements
   - Guidance changes, preannouncements, mid-quarter revisions, major contract wins/losses
   - M&A transactions, acquisitions, divestitures, take-privates, mergers, spin-offs
   - CEO, CFO, or key business-unit leadership changes; board changes; activist situations
   - Bankruptcy, distress events, capital structure changes, restructurings
   - Antitrust investigations or actions, major litigation outcomes, regulatory approval/denial
   - Major product launches, product recalls, significant pricing changes in SaaS/platform businesses
   - Subscriber/user growth beats or misses, churn spikes, ARPU inflections (for streaming/SaaS/social)
   These are HIGH-ALERT events and must be routed as tracked_ticker (if a tracked ticker is named)
   or tmt_sector (if sector-level). Only mark irrelevant if the chunk is pure boilerplate/disclaimer.`

// Classifier assigns one category per chunk
type Classifier struct {
	provider llm.Provider
	scope    model.Scope
	tracked  map[string]bool
	system   string
	verbose  bool
}

// New creates a classifier scoped to the tracked ticker whitelist
func New(provider llm.Provider, scope model.Scope, verbose bool) *Classifier {
	tickers := scope.AllTickers()
	sorted := append([]string(nil), tickers...)
	sort.Strings(sorted)

	tracked := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		tracked[t] = true
	}

	return &Classifier{
		provider: provider,
		scope:    scope,
		tracked:  tracked,
		system:   fmt.Sprintf(systemPromptTemplate, strings.Join(sorted, ", ")),
		verbose:  verbose,
	}
}

// classifyResponse is the model's JSON shape
type classifyResponse struct {
	Category    string   `json:"category"`
	Tickers     []string `json:"tickers"`
	TMTSubtopic string   `json:"tmt_subtopic"`
	ContentType string   `json:"content_type"`
	Polarity    string   `json:"polarity"`
	EventType   string   `json:"event_type"`
}

// Chunk classifies one chunk. The returned classification has already
// passed whitelist filtering, the downgrade rule and the protected
// event override.
func (c *Classifier) Chunk(ctx context.Context, chunk model.Chunk, doc model.Document) (model.Classification, error) {
	resp, err := c.provider.Complete(ctx, llm.Request{
		System:      c.system,
		User:        buildUserPrompt(chunk, doc),
		MaxTokens:   200,
		Temperature: 0,
		JSONOnly:    true,
	})
	if err != nil {
		return model.Classification{}, fmt.Errorf("classify chunk %s: %w", chunk.ChunkID, err)
	}

	var raw classifyResponse
	if err := llm.DecodeJSON(resp.Content, &raw); err != nil {
		return model.Classification{}, fmt.Errorf("classify chunk %s: %w", chunk.ChunkID, err)
	}

	return c.normalize(chunk.ChunkID, raw), nil
}

// normalize applies the deterministic post-processing rules to a raw
// model response
func (c *Classifier) normalize(chunkID string, raw classifyResponse) model.Classification {
	category := model.Category(raw.Category)
	if !category.Valid() {
		category = model.CategoryIrrelevant
	}

	// Keep only whitelisted tickers
	var tickers []string
	for _, t := range raw.Tickers {
		if c.tracked[t] {
			tickers = append(tickers, t)
		}
	}

	// Downgrade: tracked_ticker without a whitelisted ticker is a
	// sector observation
	if category == model.CategoryTrackedTicker && len(tickers) == 0 {
		category = model.CategoryTMTSector
	}
	// And the converse: a whitelisted ticker means tracked_ticker
	if len(tickers) > 0 && category != model.CategoryTrackedTicker && category != model.CategoryIrrelevant {
		category = model.CategoryTrackedTicker
	}

	eventType := validEventType(raw.EventType)

	// Protected events never drop out, whatever the model said
	if category == model.CategoryIrrelevant && model.ProtectedEventTypes[eventType] {
		if len(tickers) > 0 {
			category = model.CategoryTrackedTicker
		} else {
			category = model.CategoryTMTSector
		}
	}

	subtopic := ""
	if category == model.CategoryTMTSector {
		subtopic = raw.TMTSubtopic
		if !validSubtopic(subtopic) {
			subtopic = defaultSubtopic
		}
	}

	contentType := model.ContentType(raw.ContentType)
	switch contentType {
	case model.ContentFact, model.ContentInterpretation, model.ContentForecast, model.ContentRisk:
	default:
		contentType = model.ContentFact
	}

	polarity := model.Polarity(raw.Polarity)
	switch polarity {
	case model.PolarityPositive, model.PolarityNegative, model.PolarityNeutral, model.PolarityMixed:
	default:
		polarity = model.PolarityNeutral
	}

	return model.Classification{
		ChunkID:     chunkID,
		Category:    category,
		Tickers:     tickers,
		Subtopic:    subtopic,
		ContentType: contentType,
		Polarity:    polarity,
		EventType:   eventType,
	}
}

// Chunks classifies sequentially. A failed chunk is logged and skipped;
// its slot in the result is absent, never a partial classification.
func (c *Classifier) Chunks(ctx context.Context, chunks []model.Chunk, doc model.Document) ([]model.Chunk, []model.Classification) {
	var keptChunks []model.Chunk
	var results []model.Classification

	for i, chunk := range chunks {
		clf, err := c.Chunk(ctx, chunk, doc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "classify: skipping chunk %d/%d: %v\n", i+1, len(chunks), err)
			continue
		}
		keptChunks = append(keptChunks, chunk)
		results = append(results, clf)
	}

	if c.verbose {
		fmt.Fprintf(os.Stderr, "classify: %d/%d chunks classified\n", len(results), len(chunks))
	}
	return keptChunks, results
}

// FilterIrrelevant drops irrelevant chunks before extraction.
// Returns parallel slices plus the discard count.
func FilterIrrelevant(chunks []model.Chunk, classifications []model.Classification) ([]model.Chunk, []model.Classification, int) {
	var keptChunks []model.Chunk
	var keptClfs []model.Classification
	discarded := 0

	for i, clf := range classifications {
		if clf.Category == model.CategoryIrrelevant {
			discarded++
			continue
		}
		keptChunks = append(keptChunks, chunks[i])
		keptClfs = append(keptClfs, clf)
	}

	return keptChunks, keptClfs, discarded
}

// buildUserPrompt includes document context so the model can resolve
// pronouns and section references
func buildUserPrompt(chunk model.Chunk, doc model.Document) string {
	var parts []string

	if doc.Title != "" {
		parts = append(parts, "Document: "+doc.Title)
	}
	if doc.Analyst != "" {
		parts = append(parts, "Analyst: "+doc.Analyst)
	}
	if doc.DatePublished != "" {
		parts = append(parts, "Date: "+doc.DatePublished)
	}
	if len(parts) > 0 {
		parts = append(parts, "")
	}

	if chunk.Section != "" {
		parts = append(parts, "Section: "+chunk.Section)
	}
	if chunk.SegmentType != "" {
		parts = append(parts, "Segment type: "+string(chunk.SegmentType))
	}
	if chunk.Section != "" || chunk.SegmentType != "" {
		parts = append(parts, "")
	}

	parts = append(parts, "Text to classify:", chunk.Text)
	return strings.Join(parts, "\n")
}

func validSubtopic(s string) bool {
	for _, st := range Subtopics {
		if s == st {
			return true
		}
	}
	return false
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
