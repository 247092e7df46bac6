package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// SourceType groups sources by structural bias for synthesis weighting
type SourceType string

const (
	SourceSellSide SourceType = "sellside" // bank research portals
	SourceSubstack SourceType = "substack" // independent written research
	SourcePodcast  SourceType = "podcast"  // episode transcripts
	SourceMacro    SourceType = "macro"    // macro/news wires
)

// Document is one ingested item: a report, podcast episode, or article.
// Immutable after normalization; discarded after chunking.
type Document struct {
	DocID         string     `json:"doc_id"`
	Source        string     `json:"source"`      // firm key: "jefferies", "substack", ...
	SourceType    SourceType `json:"source_type"` // sellside | substack | podcast | macro
	Title         string     `json:"title"`
	URL           string     `json:"url,omitempty"`
	Analyst       string     `json:"analyst,omitempty"`
	Text          string     `json:"text"`
	DatePublished string     `json:"date_published,omitempty"` // YYYY-MM-DD
	DateIngested  time.Time  `json:"date_ingested"`
	PageMarkers   []int      `json:"page_markers,omitempty"` // byte offsets of page starts
	ContentHash   string     `json:"content_hash"`           // SHA-256 of raw text, for dedup
}

// NewDocument creates a Document with a fresh id, ingest timestamp and content hash
func NewDocument(source string, sourceType SourceType, title, text string) Document {
	return Document{
		DocID:        uuid.NewString(),
		Source:       source,
		SourceType:   sourceType,
		Title:        title,
		Text:         text,
		DateIngested: time.Now().UTC(),
		ContentHash:  ContentHash(text),
	}
}

// ContentHash returns the SHA-256 hex digest of text
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SegmentType classifies the structural shape of a chunk
type SegmentType string

const (
	SegmentParagraph SegmentType = "paragraph"
	SegmentBullet    SegmentType = "bullet"
	SegmentExhibit   SegmentType = "exhibit" // tables, figures, exhibits
	SegmentMixed     SegmentType = "mixed"   // packed from segments of different types
)

// Chunk is a bounded span of a Document's text (~150-400 tokens).
// Carries a back-reference to its Document and a page range; never mutated.
type Chunk struct {
	ChunkID     string      `json:"chunk_id"`
	DocID       string      `json:"doc_id"`
	Index       int         `json:"index"` // position within document
	Text        string      `json:"text"`
	PageStart   int         `json:"page_start,omitempty"` // 1-indexed
	PageEnd     int         `json:"page_end,omitempty"`   // inclusive
	Section     string      `json:"section,omitempty"`    // nearest section header
	SegmentType SegmentType `json:"segment_type,omitempty"`
}

// NewChunk creates a Chunk with a fresh id
func NewChunk(docID string, index int, text string) Chunk {
	return Chunk{
		ChunkID: uuid.NewString(),
		DocID:   docID,
		Index:   index,
		Text:    text,
	}
}
