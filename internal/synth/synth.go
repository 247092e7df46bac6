// Package synth produces the cross-source synthesis narrative: where
// sources agree, where they disagree, and what structural biases the
// reader should weigh. Pattern detection is deterministic; only the
// prose comes from the model, and it is checked post-hoc against the
// banned directive vocabulary because the model cannot be trusted to
// always comply.
package synth

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/nkarev/driftbrief/internal/llm"
	"github.com/nkarev/driftbrief/internal/model"
)

const systemPrompt = `You are a hedge fund analyst reading across all materials for a daily TMT briefing.

Your job: Compare perspectives across sources — do NOT summarize sequentially.
Weight conflicting views by source credibility scores provided.

WHAT TO SURFACE:
- Strong conviction — sources expressing high confidence or doubling down
- Softening tone — language shifting from definitive to hedged ("may", "could", "risks")
- Explicit disagreement — sources taking opposite sides on the same topic
- Emerging narratives — new themes appearing across multiple sources

PRIORITY ORDER (address in this order):
1. Divergence between sell-side and independent sources
2. Disagreement within sell-side coverage
3. Where all sources converge

RULES:
- Write in clear, direct prose (no bullet points, no headers)
- Cite sources by name (e.g., "Jefferies notes...", "Morgan Stanley argues...")
- Do NOT use directive language: no "bullish", "bearish", "should", "recommend", "buy", "sell", "hold"
- Do NOT add your own opinion or judgment
- Do NOT repeat claims verbatim — synthesize across them
- If no disagreement exists, say so explicitly
- Keep total output under %d words
- Write for a professional analyst who has already read the per-ticker news`

// Structural bias context injected into the prompt per source type.
// Fixed text, never learned.
var biasNotes = map[string]string{
	"sell_side": "High analytical depth and data access. Structural positive bias: " +
		"compensation tied to deal flow and buy-side relationships; ratings and price " +
		"targets tend to skew constructive. Sell-side consensus is a weak signal.",
	"independent": "No structural directional bias. Quality varies by author but views " +
		"are unconstrained by deal relationships. When independent sources diverge from " +
		"sell-side, treat as high-signal.",
}

// Agreement is a cluster of claims pointing the same direction on one
// topic
type Agreement struct {
	Topic     string
	ClaimIDs  []string
	Summary   string
	Specifics []string
}

// Disagreement kinds, in prompt priority order
const (
	KindCrossType = "cross_type" // sell-side vs independent
	KindInternal  = "internal"   // within one source class
)

// Disagreement is a detected split between sources on one topic
type Disagreement struct {
	Topic         string
	Kind          string
	SideAIDs      []string
	SideBIDs      []string
	SideAPosition string
	SideBPosition string
}

// Synthesis is the section output: narrative plus the deterministic
// pattern data behind it
type Synthesis struct {
	Narrative      string
	Agreements     []Agreement
	Disagreements  []Disagreement
	NoDisagreement bool
	// BannedTerms lists directive vocabulary the lexical scan caught in
	// the model output. Non-empty means the narrative was replaced by
	// the deterministic fallback.
	BannedTerms []string
}

// Synthesizer generates the cross-source narrative
type Synthesizer struct {
	provider llm.Provider
	scope    model.Scope
	maxWords int
	verbose  bool
}

// New creates a synthesizer. maxWords <= 0 uses the 750 default.
// A nil provider renders the deterministic fallback only.
func New(provider llm.Provider, scope model.Scope, maxWords int, verbose bool) *Synthesizer {
	if maxWords <= 0 {
		maxWords = 750
	}
	return &Synthesizer{provider: provider, scope: scope, maxWords: maxWords, verbose: verbose}
}

// Synthesize detects agreement and disagreement patterns across the
// full claim set, then asks the model for narrative prose. Model
// failure or a banned-vocabulary hit falls back to the deterministic
// rendering; synthesis never fails the run.
func (s *Synthesizer) Synthesize(ctx context.Context, claims []model.Claim) Synthesis {
	if len(claims) == 0 {
		return Synthesis{Narrative: "No claims available for synthesis.", NoDisagreement: true}
	}

	agreements := detectAgreements(claims)
	disagreements, noDisagreement := detectDisagreements(claims)

	result := Synthesis{
		Agreements:     agreements,
		Disagreements:  disagreements,
		NoDisagreement: noDisagreement,
	}

	if s.provider == nil {
		result.Narrative = fallbackNarrative(agreements, disagreements, noDisagreement)
		return result
	}

	resp, err := s.provider.Complete(ctx, llm.Request{
		System:      fmt.Sprintf(systemPrompt, s.maxWords),
		User:        s.buildPrompt(claims, agreements, disagreements, noDisagreement),
		MaxTokens:   1024,
		Temperature: 0.3,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "synth: narrative generation failed, using fallback: %v\n", err)
		result.Narrative = fallbackNarrative(agreements, disagreements, noDisagreement)
		return result
	}

	narrative := strings.TrimSpace(resp.Content)
	if banned := ScanBannedVocabulary(narrative); len(banned) > 0 {
		fmt.Fprintf(os.Stderr, "synth: narrative contained directive vocabulary %v, using fallback\n", banned)
		result.BannedTerms = banned
		result.Narrative = fallbackNarrative(agreements, disagreements, noDisagreement)
		return result
	}

	result.Narrative = capWords(narrative, s.maxWords)
	return result
}

// buildPrompt assembles the user prompt. Pattern ordering is imposed
// here, not left to the model: cross-type divergence first, sell-side
// internal splits second, convergence last.
func (s *Synthesizer) buildPrompt(claims []model.Claim, agreements []Agreement, disagreements []Disagreement, noDisagreement bool) string {
	var parts []string

	sources := map[string]bool{}
	types := map[string]bool{}
	for _, c := range claims {
		sources[c.Citation.Source] = true
		types[biasClass(c.SourceType)] = true
	}

	parts = append(parts, "Source credibility scores:")
	for _, src := range sortedSet(sources) {
		parts = append(parts, fmt.Sprintf("  %s: credibility %.2f", src, s.scope.SourceCredibility(src)))
	}
	parts = append(parts, "")

	parts = append(parts, "Source bias context:")
	for _, class := range sortedSet(types) {
		if note, ok := biasNotes[class]; ok {
			parts = append(parts, fmt.Sprintf("  %s: %s", class, note))
		}
	}
	parts = append(parts, "")

	parts = append(parts, "TODAY'S CLAIMS (read all, find your own connections):")
	for _, c := range claims {
		tag := "[Sector/Macro]"
		if c.Ticker != "" {
			tag = "[" + c.Ticker + "]"
		}
		parts = append(parts, fmt.Sprintf("- %s %s (%s, confidence=%s, pressure=%s)",
			tag, c.Text(), c.Citation.Source, c.ConfidenceLevel, c.BeliefPressure))
		if c.Excerpt != "" && c.Excerpt != c.Text() {
			parts = append(parts, "  source excerpt: "+c.Excerpt)
		}
	}
	parts = append(parts, "")

	parts = append(parts, "DETECTED PATTERNS (hints — you may find additional connections):")
	parts = append(parts, "")
	parts = append(parts, "Disagreements, in priority order:")
	if len(disagreements) > 0 {
		for _, d := range disagreements {
			parts = append(parts, fmt.Sprintf("- %s: %s vs. %s", d.Topic, d.SideAPosition, d.SideBPosition))
		}
	} else if noDisagreement {
		parts = append(parts, "- No disagreement detected across sources today")
	} else {
		parts = append(parts, "- Insufficient overlap to detect disagreement")
	}
	parts = append(parts, "")

	parts = append(parts, "Agreement clusters:")
	if len(agreements) > 0 {
		for _, a := range agreements {
			parts = append(parts, fmt.Sprintf("- %s: %s", a.Topic, a.Summary))
		}
	} else {
		parts = append(parts, "- None detected deterministically")
	}
	parts = append(parts, "")

	parts = append(parts,
		"Write a 2-3 paragraph synthesis. Compare perspectives — don't summarize source by source.",
		"Address sell-side vs independent divergence first, sell-side internal disagreement second, convergence last.",
		"State 'No material drift' where tone is unchanged. Weigh conflicting views by source credibility.")

	return strings.Join(parts, "\n")
}

// macroThemes maps cross-ticker themes to trigger keywords
var macroThemes = map[string][]string{
	"AI/ML":         {"ai", "artificial intelligence", "machine learning", "llm", "gpu", "inference"},
	"Cloud":         {"cloud", "aws", "azure", "gcp", "iaas", "saas"},
	"Macro":         {"gdp", "inflation", "interest rate", "fed", "economy", "recession"},
	"Enterprise":    {"enterprise", "b2b", "corporate", "digital transformation"},
	"Cybersecurity": {"security", "cyber", "threat", "breach", "zero trust"},
	"Consumer":      {"consumer", "spending", "retail", "demand"},
}

// detectAgreements finds claim clusters pointing the same direction on
// one ticker or theme
func detectAgreements(claims []model.Claim) []Agreement {
	var agreements []Agreement

	byTicker := groupByTicker(claims)
	for _, ticker := range sortedGroupKeys(byTicker) {
		group := byTicker[ticker]
		if len(group) < 2 {
			continue
		}
		confirms, contradicts := splitByPressure(group)

		if len(confirms) >= 2 {
			agreements = append(agreements, Agreement{
				Topic:     ticker,
				ClaimIDs:  claimIDs(confirms),
				Summary:   agreementSummary(confirms, ticker, false),
				Specifics: firstBullets(confirms, 3),
			})
		}
		if len(contradicts) >= 2 {
			agreements = append(agreements, Agreement{
				Topic:     ticker + " (contrarian)",
				ClaimIDs:  claimIDs(contradicts),
				Summary:   agreementSummary(contradicts, ticker, true),
				Specifics: firstBullets(contradicts, 3),
			})
		}
	}

	byTheme := groupByTheme(claims)
	for _, theme := range sortedGroupKeys(byTheme) {
		group := byTheme[theme]
		if len(group) < 2 {
			continue
		}
		confirms, contradicts := splitByPressure(group)

		if len(confirms) >= 2 {
			agreements = append(agreements, Agreement{
				Topic:     theme + " (theme)",
				ClaimIDs:  claimIDs(confirms),
				Summary:   fmt.Sprintf("Multiple reports aligned on %s outlook", theme),
				Specifics: firstBullets(confirms, 3),
			})
		}
		if len(contradicts) >= 2 {
			agreements = append(agreements, Agreement{
				Topic:     theme + " concerns",
				ClaimIDs:  claimIDs(contradicts),
				Summary:   fmt.Sprintf("Multiple reports flag %s risks", theme),
				Specifics: firstBullets(contradicts, 3),
			})
		}
	}

	return agreements
}

// detectDisagreements finds splits between confirming and contradicting
// claims on the same topic. The second return is true when sources
// overlapped enough to disagree but did not.
func detectDisagreements(claims []model.Claim) ([]Disagreement, bool) {
	var disagreements []Disagreement
	foundPotential := false

	byTicker := groupByTicker(claims)
	for _, ticker := range sortedGroupKeys(byTicker) {
		group := byTicker[ticker]
		if len(group) < 2 {
			continue
		}
		foundPotential = true

		confirms, contradicts := splitByPressure(group)
		if len(confirms) > 0 && len(contradicts) > 0 {
			disagreements = append(disagreements, Disagreement{
				Topic:         ticker,
				Kind:          disagreementKind(confirms, contradicts),
				SideAIDs:      claimIDs(confirms),
				SideBIDs:      claimIDs(contradicts),
				SideAPosition: "Consensus view: " + confirms[0].Text(),
				SideBPosition: "Contrarian view: " + contradicts[0].Text(),
			})
		}
	}

	byTheme := groupByTheme(claims)
	for _, theme := range sortedGroupKeys(byTheme) {
		group := byTheme[theme]
		if len(group) < 2 {
			continue
		}
		confirms, contradicts := splitByPressure(group)
		if len(confirms) > 0 && len(contradicts) > 0 {
			foundPotential = true
			disagreements = append(disagreements, Disagreement{
				Topic:         theme + " (theme)",
				Kind:          disagreementKind(confirms, contradicts),
				SideAIDs:      claimIDs(confirms),
				SideBIDs:      claimIDs(contradicts),
				SideAPosition: "Positive: " + confirms[0].Text(),
				SideBPosition: "Concerns: " + contradicts[0].Text(),
			})
		}
	}

	// Cross-type divergence outranks internal splits in the prompt
	sort.SliceStable(disagreements, func(i, j int) bool {
		return kindRank(disagreements[i].Kind) < kindRank(disagreements[j].Kind)
	})

	return disagreements, foundPotential && len(disagreements) == 0
}

// disagreementKind reports whether the split crosses the
// sell-side/independent line
func disagreementKind(sideA, sideB []model.Claim) string {
	classes := func(claims []model.Claim) map[string]bool {
		out := map[string]bool{}
		for _, c := range claims {
			out[biasClass(c.SourceType)] = true
		}
		return out
	}
	a, b := classes(sideA), classes(sideB)
	if (a["sell_side"] && b["independent"]) || (a["independent"] && b["sell_side"]) {
		return KindCrossType
	}
	return KindInternal
}

func kindRank(kind string) int {
	if kind == KindCrossType {
		return 0
	}
	return 1
}

func biasClass(st model.SourceType) string {
	if st == model.SourceSellSide {
		return "sell_side"
	}
	return "independent"
}

func agreementSummary(claims []model.Claim, topic string, contrarian bool) string {
	var all strings.Builder
	for _, c := range claims {
		all.WriteString(strings.ToLower(c.Text()))
		all.WriteString(" ")
	}
	text := all.String()

	var keywords []string
	for _, kw := range []struct{ match, label string }{
		{"revenue", "revenue trajectory"},
		{"growth", "revenue trajectory"},
		{"margin", "margin trends"},
		{"ai", "AI impact"},
		{"cloud", "cloud performance"},
		{"competit", "competitive position"},
	} {
		if strings.Contains(text, kw.match) && !contains(keywords, kw.label) {
			keywords = append(keywords, kw.label)
		}
	}

	if len(keywords) > 0 {
		focus := strings.Join(keywords[:min(2, len(keywords))], ", ")
		if contrarian {
			return fmt.Sprintf("Multiple sources raise concerns about %s %s", topic, focus)
		}
		return fmt.Sprintf("Multiple sources aligned on %s %s", topic, focus)
	}

	first := claims[0].Text()
	if len(first) > 80 {
		first = first[:80]
	}
	if contrarian {
		return "Sources challenge consensus: " + first
	}
	return "Sources agree: " + first
}

func fallbackNarrative(agreements []Agreement, disagreements []Disagreement, noDisagreement bool) string {
	var lines []string

	if len(disagreements) > 0 {
		lines = append(lines, "**Where sources disagree:**")
		for _, d := range disagreements {
			lines = append(lines, fmt.Sprintf("- %s: %s vs. %s", d.Topic, d.SideAPosition, d.SideBPosition))
		}
	} else if noDisagreement {
		lines = append(lines, "No disagreement detected across sources today.")
	} else {
		lines = append(lines, "Insufficient source overlap to detect disagreement.")
	}

	lines = append(lines, "")

	if len(agreements) > 0 {
		lines = append(lines, "**Where sources agree:**")
		for _, a := range agreements {
			lines = append(lines, fmt.Sprintf("- %s: %s", a.Topic, a.Summary))
		}
	} else {
		lines = append(lines, "No clear agreement clusters detected across sources.")
	}

	return strings.Join(lines, "\n")
}

var bannedRE = regexp.MustCompile(`(?i)\b(buy|hold|bullish|bearish|should|recommend(?:s|ed|ation)?)\b`)
var sellRE = regexp.MustCompile(`(?i)\bsell\b`)
var sellSideRE = regexp.MustCompile(`(?i)\bsell[- ]side\b`)

// ScanBannedVocabulary returns the directive terms found in text.
// "sell-side" as a source-class label is exempt; a bare "sell" is not.
func ScanBannedVocabulary(text string) []string {
	seen := map[string]bool{}
	var found []string

	for _, m := range bannedRE.FindAllString(text, -1) {
		w := strings.ToLower(m)
		if !seen[w] {
			seen[w] = true
			found = append(found, w)
		}
	}

	stripped := sellSideRE.ReplaceAllString(text, "")
	if sellRE.MatchString(stripped) && !seen["sell"] {
		found = append(found, "sell")
	}

	sort.Strings(found)
	return found
}

func groupByTicker(claims []model.Claim) map[string][]model.Claim {
	grouped := make(map[string][]model.Claim)
	for _, c := range claims {
		if c.Ticker != "" {
			grouped[c.Ticker] = append(grouped[c.Ticker], c)
		}
	}
	return grouped
}

func groupByTheme(claims []model.Claim) map[string][]model.Claim {
	grouped := make(map[string][]model.Claim)
	for _, c := range claims {
		text := strings.ToLower(c.Text())
		for theme, keywords := range macroThemes {
			for _, kw := range keywords {
				if strings.Contains(text, kw) {
					grouped[theme] = append(grouped[theme], c)
					break
				}
			}
		}
	}
	return grouped
}

func splitByPressure(claims []model.Claim) (confirms, contradicts []model.Claim) {
	for _, c := range claims {
		switch {
		case c.BeliefPressure == model.ConfirmsConsensus:
			confirms = append(confirms, c)
		case c.BeliefPressure.Contrarian():
			contradicts = append(contradicts, c)
		}
	}
	return confirms, contradicts
}

func claimIDs(claims []model.Claim) []string {
	ids := make([]string, len(claims))
	for i, c := range claims {
		ids[i] = c.ClaimID
	}
	return ids
}

func firstBullets(claims []model.Claim, n int) []string {
	var out []string
	for _, c := range claims[:min(n, len(claims))] {
		out = append(out, c.Text())
	}
	return out
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedGroupKeys(m map[string][]model.Claim) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func capWords(text string, max int) string {
	words := strings.Fields(text)
	if len(words) <= max {
		return text
	}
	return strings.Join(words[:max], " ")
}
