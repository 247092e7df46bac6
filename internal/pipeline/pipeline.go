// Package pipeline orchestrates the daily run: collect, chunk,
// classify, triage, extract, store, drift, synthesize, render.
// Stages degrade independently where the design allows it: a failed
// source, chunk, or synthesis never aborts the run, but a config error
// or an unreachable history store does.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nkarev/driftbrief/internal/briefing"
	"github.com/nkarev/driftbrief/internal/cache"
	"github.com/nkarev/driftbrief/internal/chunk"
	"github.com/nkarev/driftbrief/internal/classify"
	"github.com/nkarev/driftbrief/internal/collect"
	"github.com/nkarev/driftbrief/internal/drift"
	"github.com/nkarev/driftbrief/internal/extract"
	"github.com/nkarev/driftbrief/internal/history"
	"github.com/nkarev/driftbrief/internal/llm"
	"github.com/nkarev/driftbrief/internal/model"
	"github.com/nkarev/driftbrief/internal/synth"
	"github.com/nkarev/driftbrief/internal/triage"
	"github.com/nkarev/driftbrief/internal/util"
	"github.com/nkarev/driftbrief/internal/worker"
)

// feedRPS paces outbound feed fetches per domain
const feedRPS = 1.0

// RunStats accounts for one pipeline run, stage by stage
type RunStats struct {
	Documents    int
	Duplicates   int
	Chunks       int
	Classified   int
	Irrelevant   int
	Triaged      int
	Claims       int
	DriftSignals int
	Thin         bool
	Truncated    bool
	Words        int
	Pages        float64
	OutputPath   string

	SourceFailures map[string]error
}

// Pipeline holds the wired stages for repeated runs
type Pipeline struct {
	cfg        *model.Config
	provider   llm.Provider
	store      *history.Store
	classifier *classify.Classifier
	triager    *triage.Triager
	extractor  *extract.Extractor
	synth      *synth.Synthesizer
	renderer   *briefing.Renderer
}

// New validates the config, builds the provider chain and opens the
// claim history. The caller owns Close.
func New(cfg *model.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, model.ErrNoProvider
	}
	if cfg.LLM.RequestsPerMinute > 0 {
		provider = llm.Throttle(provider, cfg.LLM.RequestsPerMinute)
	}
	if cfg.Cache.Enabled && cfg.Cache.Dir != "" {
		store := cache.NewLayeredCache(5*time.Minute, cfg.Cache.Dir, cfg.Cache.TTL)
		provider = llm.WithCache(provider, store, cfg.Cache.TTL)
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("open claim history: %w", err)
	}

	return &Pipeline{
		cfg:        cfg,
		provider:   provider,
		store:      store,
		classifier: classify.New(provider, cfg.Scope, cfg.Verbose),
		triager:    triage.New(cfg.Scope, cfg.Triage.Threshold, cfg.Triage.MaxChunks),
		extractor:  extract.New(provider, cfg.Verbose),
		synth:      synth.New(provider, cfg.Scope, 0, cfg.Verbose),
		renderer:   briefing.New(cfg.Scope, cfg.Briefing),
	}, nil
}

// Close releases the history store
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// sources builds the collection fan-out from config. RSS feeds share
// one robots checker and one per-domain limiter.
func (p *Pipeline) sources() []collect.Source {
	var sources []collect.Source

	if len(p.cfg.Collect.Feeds) > 0 {
		opts := collect.RSSOptions{
			Timeout:   p.cfg.Collect.Timeout,
			UserAgent: p.cfg.Collect.UserAgent,
			Robots:    util.NewRobotsChecker(p.cfg.Collect.UserAgent, p.cfg.Collect.Timeout),
			Limiter:   worker.NewLimiter(feedRPS, 2),
		}
		for _, feed := range p.cfg.Collect.Feeds {
			sources = append(sources, collect.NewRSSSource(feed, opts))
		}
	}

	if p.cfg.Collect.InboxDir != "" {
		sources = append(sources, collect.NewInboxSource(p.cfg.Collect.InboxDir))
	}

	return sources
}

// Run executes one daily briefing for the given date and writes the
// markdown to the configured output directory.
func (p *Pipeline) Run(ctx context.Context, date time.Time) (*RunStats, error) {
	stats := &RunStats{}
	dateStr := date.Format("2006-01-02")

	collector := collect.NewCollector(p.sources(), p.cfg.Collect.MaxWorkers, p.cfg.Verbose)
	docs, cstats, err := collector.Run(ctx)
	if err != nil {
		return nil, err
	}
	stats.Documents = cstats.Documents
	stats.Duplicates = cstats.Duplicates
	stats.SourceFailures = cstats.Failed

	claims := p.process(ctx, docs, stats)
	stats.Claims = len(claims)

	if _, err := p.store.Append(claims, dateStr); err != nil {
		return nil, fmt.Errorf("append claim history: %w", err)
	}

	lookback := p.cfg.Drift.LookbackDays
	if lookback <= 0 {
		lookback = 7
	}
	prior, err := p.store.Window(lookback, dateStr)
	if err != nil {
		return nil, fmt.Errorf("load prior claims: %w", err)
	}
	// Optionally fold in the same-length windows from earlier periods
	for k := 1; k <= p.cfg.Drift.ComparePeriods; k++ {
		end := date.AddDate(0, 0, -k*lookback).Format("2006-01-02")
		older, err := p.store.Window(lookback, end)
		if err != nil {
			return nil, fmt.Errorf("load prior claims: %w", err)
		}
		prior = append(prior, older...)
	}
	report := drift.Detect(claims, prior, dateStr, lookback)
	stats.DriftSignals = len(report.Signals)

	synthesis := p.synth.Synthesize(ctx, claims)

	out := p.renderer.Render(date, claims, synthesis, report)
	stats.Thin = out.Thin
	stats.Truncated = out.Truncated
	stats.Words = out.Words
	stats.Pages = out.Pages()

	path, err := p.write(dateStr, out.Markdown)
	if err != nil {
		return nil, err
	}
	stats.OutputPath = path

	if p.cfg.Verbose {
		fmt.Fprintf(os.Stderr, "pipeline: %d docs, %d chunks, %d claims, %d drift signals, %d words -> %s\n",
			stats.Documents, stats.Chunks, stats.Claims, stats.DriftSignals, stats.Words, path)
	}
	return stats, nil
}

// process runs chunking through extraction per document, accumulating
// stage counts
func (p *Pipeline) process(ctx context.Context, docs []model.Document, stats *RunStats) []model.Claim {
	var claims []model.Claim

	for _, doc := range docs {
		chunks := chunk.Document(doc)
		stats.Chunks += len(chunks)
		if len(chunks) == 0 {
			continue
		}

		kept, clfs := p.classifier.Chunks(ctx, chunks, doc)
		stats.Classified += len(clfs)

		kept, clfs, discarded := classify.FilterIrrelevant(kept, clfs)
		stats.Irrelevant += discarded
		if len(kept) == 0 {
			continue
		}

		result := p.triager.Run(kept, clfs, doc.Source)
		if p.cfg.Verbose {
			fmt.Fprintf(os.Stderr, "%s: %s\n", doc.Source, result.Summary())
		}
		stats.Triaged += len(result.Kept)

		tChunks := make([]model.Chunk, len(result.Kept))
		tClfs := make([]model.Classification, len(result.Kept))
		for i, s := range result.Kept {
			tChunks[i] = s.Chunk
			tClfs[i] = s.Classification
		}

		claims = append(claims, p.extractor.Chunks(ctx, tChunks, tClfs, doc)...)
	}

	return claims
}

// write persists the briefing markdown as briefing-YYYY-MM-DD.md
func (p *Pipeline) write(dateStr, markdown string) (string, error) {
	dir := p.cfg.Briefing.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, "briefing-"+dateStr+".md")
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return "", fmt.Errorf("write briefing: %w", err)
	}
	return path, nil
}
