package triage

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nkarev/driftbrief/internal/model"
)

const (
	// SimilarityThreshold is the Jaccard token overlap that marks a
	// chunk as a duplicate of a higher-scoring one
	SimilarityThreshold = 0.3

	// SameTickerSimilarityThreshold applies when two chunks share a
	// ticker; duplicates about the same name are cheaper to drop
	SameTickerSimilarityThreshold = 0.20

	// MinSurvivingChunks is the floor pulled back from the dropped
	// pile on thin days
	MinSurvivingChunks = 5
)

// Drop reasons for the audit trail
const (
	DropBelowThreshold = "below_threshold"
	DropDuplicate      = "duplicate"
	DropOverLimit      = "over_limit"
)

// Scored pairs a surviving chunk with its classification and score
type Scored struct {
	Chunk          model.Chunk
	Classification model.Classification
	Score          float64
}

// Dropped records why a chunk was cut
type Dropped struct {
	Chunk          model.Chunk
	Classification model.Classification
	Reason         string
}

// Result is the triage outcome with a full audit trail
type Result struct {
	Kept       []Scored
	Dropped    []Dropped
	InputCount int
}

// CompressionRatio is input over output; higher means triage did its job
func (r Result) CompressionRatio() float64 {
	if len(r.Kept) == 0 {
		return 0
	}
	return float64(r.InputCount) / float64(len(r.Kept))
}

// DropCounts tallies drops by reason
func (r Result) DropCounts() map[string]int {
	counts := make(map[string]int)
	for _, d := range r.Dropped {
		counts[d.Reason]++
	}
	return counts
}

// Summary renders a human-readable audit line set
func (r Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "triage: %d in, %d out, %d dropped", r.InputCount, len(r.Kept), len(r.Dropped))
	for reason, count := range r.DropCounts() {
		fmt.Fprintf(&b, " [%s:%d]", reason, count)
	}
	return b.String()
}

// Triager applies the relevance policy for one scope
type Triager struct {
	scope     model.Scope
	threshold float64
	maxChunks int
}

// New creates a triager. threshold <= 0 uses the 0.7 default; maxChunks
// <= 0 uses 50.
func New(scope model.Scope, threshold float64, maxChunks int) *Triager {
	if threshold <= 0 {
		threshold = 0.7
	}
	if maxChunks <= 0 {
		maxChunks = 50
	}
	return &Triager{scope: scope, threshold: threshold, maxChunks: maxChunks}
}

// Run scores, filters, de-duplicates and caps the chunk set. Chunks
// carrying a protected event bypass every cut: they are kept whatever
// their score, never deduped away, and never counted against the cap.
func (t *Triager) Run(chunks []model.Chunk, clfs []model.Classification, source string) Result {
	result := Result{InputCount: len(chunks)}

	var kept []Scored
	for i, clf := range clfs {
		score := Score(clf, t.scope, source)

		if score < t.threshold && !clf.Protected() {
			result.Dropped = append(result.Dropped, Dropped{chunks[i], clf, DropBelowThreshold})
			continue
		}
		kept = append(kept, Scored{chunks[i], clf, score})
	}

	// De-duplicate against higher-scoring survivors
	if len(kept) > 1 {
		dupIDs := findDuplicates(kept)
		filtered := kept[:0]
		for _, s := range kept {
			if dupIDs[s.Chunk.ChunkID] {
				result.Dropped = append(result.Dropped, Dropped{s.Chunk, s.Classification, DropDuplicate})
				continue
			}
			filtered = append(filtered, s)
		}
		kept = filtered
	}

	// Cap regulars; protected chunks ride along for free
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	var protected, regular []Scored
	for _, s := range kept {
		if s.Classification.Protected() {
			protected = append(protected, s)
		} else {
			regular = append(regular, s)
		}
	}
	if len(regular) > t.maxChunks {
		for _, s := range regular[t.maxChunks:] {
			result.Dropped = append(result.Dropped, Dropped{s.Chunk, s.Classification, DropOverLimit})
		}
		regular = regular[:t.maxChunks]
	}
	kept = append(protected, regular...)
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	// Thin-day floor: pull back the best threshold casualties.
	// Duplicates stay dropped; redundancy is never worth recovering.
	if len(kept) < MinSurvivingChunks && len(result.Dropped) > 0 {
		kept = t.recover(kept, &result, source)
	}

	result.Kept = kept
	return result
}

// recover pulls the highest-scoring below_threshold drops back in
// until the floor is met
func (t *Triager) recover(kept []Scored, result *Result, source string) []Scored {
	var candidates []Scored
	for _, d := range result.Dropped {
		if d.Reason == DropBelowThreshold {
			candidates = append(candidates, Scored{d.Chunk, d.Classification, Score(d.Classification, t.scope, source)})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	needed := MinSurvivingChunks - len(kept)
	if needed > len(candidates) {
		needed = len(candidates)
	}

	recovered := make(map[string]bool)
	for _, c := range candidates[:needed] {
		kept = append(kept, c)
		recovered[c.Chunk.ChunkID] = true
	}

	var remaining []Dropped
	for _, d := range result.Dropped {
		if !recovered[d.Chunk.ChunkID] {
			remaining = append(remaining, d)
		}
	}
	result.Dropped = remaining

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return kept
}

var wordRE = regexp.MustCompile(`\b\w+\b`)

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, w := range wordRE.FindAllString(strings.ToLower(text), -1) {
		tokens[w] = true
	}
	return tokens
}

// JaccardSimilarity computes token-set overlap between two texts
func JaccardSimilarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range ta {
		if tb[w] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// findDuplicates returns chunk ids too similar to a higher-scoring
// survivor. Protected chunks are never marked.
func findDuplicates(scored []Scored) map[string]bool {
	ordered := append([]Scored(nil), scored...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	type keptItem struct {
		text    string
		tickers map[string]bool
	}
	var keptItems []keptItem
	duplicates := make(map[string]bool)

	for _, s := range ordered {
		tickers := make(map[string]bool)
		for _, t := range s.Classification.Tickers {
			tickers[t] = true
		}

		isDup := false
		if !s.Classification.Protected() {
			for _, k := range keptItems {
				threshold := SimilarityThreshold
				for t := range tickers {
					if k.tickers[t] {
						threshold = SameTickerSimilarityThreshold
						break
					}
				}
				if JaccardSimilarity(s.Chunk.Text, k.text) >= threshold {
					isDup = true
					break
				}
			}
		}

		if isDup {
			duplicates[s.Chunk.ChunkID] = true
		} else {
			keptItems = append(keptItems, keptItem{text: s.Chunk.Text, tickers: tickers})
		}
	}

	return duplicates
}
