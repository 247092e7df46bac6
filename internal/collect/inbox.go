package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkarev/driftbrief/internal/model"
)

// InboxSource reads normalized documents from a drop directory. PDF
// reports and podcast transcripts are converted to Document JSON by
// upstream tooling and dropped here, one file per document.
type InboxSource struct {
	dir string
}

// NewInboxSource creates a source over a drop directory
func NewInboxSource(dir string) *InboxSource {
	return &InboxSource{dir: dir}
}

// Name identifies the source in logs and stats
func (s *InboxSource) Name() string { return "inbox:" + s.dir }

// Collect reads every .json file in the directory. A file that does
// not parse is skipped, not fatal: one malformed drop must not block
// the day's briefing.
func (s *InboxSource) Collect(ctx context.Context) ([]model.Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read inbox dir: %w", err)
	}

	var docs []model.Document
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		doc, err := readDocument(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "collect: skipping %s: %v\n", path, err)
			continue
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// readDocument loads and backfills one Document file. Drops may omit
// generated fields; id, ingest time and hash are filled here.
func readDocument(path string) (model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Document{}, err
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.Document{}, fmt.Errorf("parse document: %w", err)
	}

	if strings.TrimSpace(doc.Text) == "" {
		return model.Document{}, fmt.Errorf("document has no text")
	}
	if doc.Source == "" {
		return model.Document{}, fmt.Errorf("document has no source")
	}

	if doc.DocID == "" {
		doc.DocID = uuid.NewString()
	}
	if doc.DateIngested.IsZero() {
		doc.DateIngested = time.Now().UTC()
	}
	if doc.ContentHash == "" {
		doc.ContentHash = model.ContentHash(doc.Text)
	}

	return doc, nil
}
