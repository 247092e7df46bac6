package collect

import (
	"context"
	"fmt"
	"os"

	"github.com/nkarev/driftbrief/internal/model"
	"github.com/nkarev/driftbrief/internal/worker"
)

// Source produces normalized documents from one upstream (an RSS feed,
// a drop directory of normalized PDFs, a transcript inbox)
type Source interface {
	// Name identifies the source in logs and stats
	Name() string

	// Collect fetches everything the source currently has
	Collect(ctx context.Context) ([]model.Document, error)
}

// Stats summarizes one collection run
type Stats struct {
	Documents  int
	Duplicates int
	PerSource  map[string]int
	Failed     map[string]error
}

// Collector fans out over sources concurrently. One source failing
// never aborts the run: its error lands in Stats.Failed and the rest
// proceed.
type Collector struct {
	sources []Source
	workers int
	verbose bool
}

// NewCollector creates a collector over the given sources
func NewCollector(sources []Source, workers int, verbose bool) *Collector {
	if workers <= 0 {
		workers = 4
	}
	return &Collector{
		sources: sources,
		workers: workers,
		verbose: verbose,
	}
}

// sourceJob adapts a Source to the worker pool
type sourceJob struct {
	source Source
}

// sourceResult carries one source's output through the pool
type sourceResult struct {
	name string
	docs []model.Document
	err  error
}

func (r *sourceResult) GetError() error { return r.err }

func (j *sourceJob) Execute(ctx context.Context) worker.Result {
	docs, err := j.source.Collect(ctx)
	return &sourceResult{name: j.source.Name(), docs: docs, err: err}
}

// Run collects from all sources and returns the deduplicated document
// set. Documents with identical content hashes collapse to the first
// one seen; the same report arriving through two feeds counts once.
func (c *Collector) Run(ctx context.Context) ([]model.Document, Stats, error) {
	stats := Stats{
		PerSource: make(map[string]int),
		Failed:    make(map[string]error),
	}

	if len(c.sources) == 0 {
		return nil, stats, fmt.Errorf("no sources configured")
	}

	pool := worker.NewPool(c.workers)
	pool.Start()

	for _, s := range c.sources {
		pool.Submit(&sourceJob{source: s})
	}

	results := pool.Wait()

	seen := make(map[string]bool)
	var docs []model.Document

	for _, r := range results {
		sr := r.(*sourceResult)
		if sr.err != nil {
			stats.Failed[sr.name] = sr.err
			if c.verbose {
				fmt.Fprintf(os.Stderr, "collect: source %s failed: %v\n", sr.name, sr.err)
			}
			continue
		}
		for _, doc := range sr.docs {
			if seen[doc.ContentHash] {
				stats.Duplicates++
				continue
			}
			seen[doc.ContentHash] = true
			docs = append(docs, doc)
			stats.PerSource[sr.name]++
		}
	}

	stats.Documents = len(docs)
	if c.verbose {
		fmt.Fprintf(os.Stderr, "collect: %d documents from %d sources (%d duplicates dropped)\n",
			stats.Documents, len(c.sources), stats.Duplicates)
	}

	return docs, stats, nil
}
