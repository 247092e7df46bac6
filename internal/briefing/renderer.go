// Package briefing assembles the fixed four-section daily output.
// Purely deterministic: the same claims, synthesis and drift report
// always render the same markdown. Length enforcement drops "No Update"
// placeholder lines before any substantive claim, and never drops a
// high-alert or breaking claim.
package briefing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nkarev/driftbrief/internal/extract"
	"github.com/nkarev/driftbrief/internal/model"
	"github.com/nkarev/driftbrief/internal/synth"
)

const wordsPerPage = 500

// Briefing is a rendered daily output plus its accounting
type Briefing struct {
	Markdown  string
	Words     int
	Thin      bool // fewer claims than the configured minimum
	Truncated bool // length enforcement removed content
}

// Pages estimates page count at 500 words per page
func (b Briefing) Pages() float64 {
	return float64(b.Words) / wordsPerPage
}

// Renderer holds the layout policy for one scope
type Renderer struct {
	scope        model.Scope
	capPerTicker int // 0 disables the regular-claim cap
	maxWords     int
	minClaims    int
}

// New creates a renderer from the briefing config
func New(scope model.Scope, cfg model.BriefingConfig) *Renderer {
	maxWords := cfg.MaxWords
	if maxWords <= 0 {
		maxWords = 2500
	}
	return &Renderer{
		scope:        scope,
		capPerTicker: cfg.MaxClaimsPerTicker,
		maxWords:     maxWords,
		minClaims:    cfg.MinClaims,
	}
}

// Render assembles the briefing for one day. Claims may be any
// category; routing to sections happens here.
func (r *Renderer) Render(date time.Time, claims []model.Claim, synthesis synth.Synthesis, drift model.DriftReport) Briefing {
	b := Briefing{Thin: r.minClaims > 0 && len(claims) < r.minClaims}

	dropped := map[string]bool{}
	keepNoUpdates := true

	out := r.assemble(date, claims, synthesis, drift, b.Thin, keepNoUpdates, dropped)
	if CountWords(out) > r.maxWords {
		// No Update placeholders go first
		b.Truncated = true
		keepNoUpdates = false
		out = r.assemble(date, claims, synthesis, drift, b.Thin, keepNoUpdates, dropped)
	}

	// Still over: shed droppable claims in reverse priority. High-alert
	// and breaking claims are never candidates.
	for _, id := range droppableOrder(claims) {
		if CountWords(out) <= r.maxWords {
			break
		}
		dropped[id] = true
		out = r.assemble(date, claims, synthesis, drift, b.Thin, keepNoUpdates, dropped)
	}

	b.Markdown = out
	b.Words = CountWords(out)
	return b
}

func (r *Renderer) assemble(date time.Time, claims []model.Claim, synthesis synth.Synthesis, drift model.DriftReport, thin, keepNoUpdates bool, dropped map[string]bool) string {
	var kept []model.Claim
	for _, c := range claims {
		if !dropped[c.ClaimID] {
			kept = append(kept, c)
		}
	}

	var tickerClaims, sectorClaims, macroClaims []model.Claim
	for _, c := range kept {
		switch c.Category {
		case model.CategoryTrackedTicker:
			tickerClaims = append(tickerClaims, c)
		case model.CategoryTMTSector:
			sectorClaims = append(sectorClaims, c)
		case model.CategoryMacro:
			macroClaims = append(macroClaims, c)
		}
	}

	var sections []string
	sections = append(sections, "# Daily Briefing — "+date.Format("January 02, 2006")+"\n")
	if thin {
		sections = append(sections, fmt.Sprintf("*Thin briefing: %d claims survived filtering today.*\n", len(claims)))
	}
	sections = append(sections, "---\n")
	sections = append(sections, r.renderSection1(tickerClaims, sectorClaims, keepNoUpdates))
	sections = append(sections, "---\n")
	sections = append(sections, renderSection2(synthesis))
	sections = append(sections, "---\n")
	sections = append(sections, renderSection3(macroClaims))
	sections = append(sections, "---\n")
	sections = append(sections, renderSection4(drift))

	return strings.Join(sections, "\n")
}

// renderSection1 lists per-ticker updates for every tracked ticker,
// then sector-level developments. High-alert claims render flagged and
// bypass the per-ticker cap.
func (r *Renderer) renderSection1(tickerClaims, sectorClaims []model.Claim, keepNoUpdates bool) string {
	var lines []string
	lines = append(lines, "## 1. Objective Breaking News")
	lines = append(lines, "*Per-ticker updates and TMT sector-level developments*\n")

	lines = append(lines, "### Tracked Tickers\n")

	byTicker := map[string][]model.Claim{}
	for _, c := range tickerClaims {
		if c.Ticker != "" {
			byTicker[c.Ticker] = append(byTicker[c.Ticker], c)
		}
	}

	for _, ticker := range r.scope.AllTickers() {
		group := byTicker[ticker]
		if len(group) == 0 {
			if keepNoUpdates {
				lines = append(lines, fmt.Sprintf("**%s** — No Update\n", ticker))
			}
			continue
		}

		extract.SortByPriority(group)

		var highAlert, regular []model.Claim
		for _, c := range group {
			if extract.IsHighAlert(c) {
				highAlert = append(highAlert, c)
			} else {
				regular = append(regular, c)
			}
		}
		// The cap bounds regular claims only; high-alert claims ride
		// along for free however many there are
		if r.capPerTicker > 0 && len(regular) > r.capPerTicker {
			regular = regular[:r.capPerTicker]
		}

		lines = append(lines, fmt.Sprintf("**%s**", ticker))
		for _, c := range highAlert {
			lines = append(lines, "- ⚠ "+c.Text())
			lines = append(lines, "  *— "+c.CitationString()+"*")
		}
		for _, c := range regular {
			lines = append(lines, "- "+c.Text())
			lines = append(lines, "  *— "+c.CitationString()+"*")
		}
		lines = append(lines, "")
	}

	if len(sectorClaims) > 0 {
		lines = append(lines, "### TMT Sector-Level\n")

		byGroup := map[string][]model.Claim{}
		for _, c := range sectorClaims {
			key := string(c.EventType)
			if key == "" {
				key = "general"
			}
			byGroup[key] = append(byGroup[key], c)
		}

		keys := make([]string, 0, len(byGroup))
		for k := range byGroup {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			group := byGroup[key]
			extract.SortByPriority(group)
			if r.capPerTicker > 0 && len(group) > r.capPerTicker {
				group = group[:r.capPerTicker]
			}

			lines = append(lines, "**"+titleLabel(key)+"**")
			for _, c := range group {
				lines = append(lines, "- "+c.Text())
				lines = append(lines, "  *— "+c.CitationString()+"*")
			}
			lines = append(lines, "")
		}
	}

	return strings.Join(lines, "\n")
}

func renderSection2(synthesis synth.Synthesis) string {
	var lines []string
	lines = append(lines, "## 2. Synthesis Across Sources")
	lines = append(lines, "*Where sources agree, disagree, and what to weigh*\n")

	if synthesis.Narrative != "" {
		lines = append(lines, synthesis.Narrative)
	} else {
		lines = append(lines, "*No cross-source synthesis available today.*")
	}
	lines = append(lines, "")

	return strings.Join(lines, "\n")
}

func renderSection3(macroClaims []model.Claim) string {
	var lines []string
	lines = append(lines, "## 3. Macro Connections")
	lines = append(lines, "*Macro and geopolitical developments with a sector read*\n")

	if len(macroClaims) == 0 {
		lines = append(lines, "*No macro claims today.*")
		lines = append(lines, "")
		return strings.Join(lines, "\n")
	}

	sorted := append([]model.Claim(nil), macroClaims...)
	extract.SortByPriority(sorted)

	for _, c := range sorted {
		lines = append(lines, "- "+c.Text())
		if c.SectorImplication != "" {
			lines = append(lines, "  *TMT link: "+c.SectorImplication+"*")
		}
		lines = append(lines, "  *— "+c.CitationString()+"*")
	}
	lines = append(lines, "")

	return strings.Join(lines, "\n")
}

func renderSection4(report model.DriftReport) string {
	var lines []string
	lines = append(lines, "## 4. Longitudinal Delta Detection")
	lines = append(lines, fmt.Sprintf("*Belief changes vs the prior %d days*\n", report.LookbackDays))

	if len(report.Signals) == 0 {
		lines = append(lines, "*No drift signals detected.*")
		lines = append(lines, "")
		return strings.Join(lines, "\n")
	}

	grouped := report.ByTicker()
	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		lines = append(lines, "**"+key+"**")
		for _, s := range grouped[key] {
			lines = append(lines, fmt.Sprintf("- [%s] %s: %s", strings.ToUpper(string(s.Severity)), s.Type, s.Description))
			if s.TodayClaim != "" {
				lines = append(lines, "  Today: "+s.TodayClaim)
			}
			if s.PriorClaim != "" {
				prior := "  Prior: " + s.PriorClaim
				if s.PriorDate != "" {
					prior += " (" + s.PriorDate + ")"
				}
				lines = append(lines, prior)
			}
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

// droppableOrder lists claims eligible for length-budget removal,
// least valuable first. High-alert and breaking claims are excluded.
func droppableOrder(claims []model.Claim) []string {
	var candidates []model.Claim
	for _, c := range claims {
		if extract.IsHighAlert(c) || c.TimeSensitivity == model.TimeBreaking {
			continue
		}
		candidates = append(candidates, c)
	}
	extract.SortByPriority(candidates)

	// Reverse: lowest priority drops first
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[len(candidates)-1-i] = c.ClaimID
	}
	return ids
}

// CountWords counts whitespace-separated tokens
func CountWords(text string) int {
	return len(strings.Fields(text))
}

func titleLabel(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
