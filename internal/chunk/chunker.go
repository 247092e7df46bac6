// Package chunk splits normalized documents into atomic units sized
// for single-pass classification. Deterministic and lossless: the same
// document always yields the same chunks, and every line of source
// text lands in exactly one chunk.
package chunk

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/nkarev/driftbrief/internal/model"
)

// Token bounds per chunk. ~4 chars per token for English text.
const (
	MinTokens = 150
	MaxTokens = 400
)

// EstimateTokens approximates the token count of text
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

var (
	bulletRE  = regexp.MustCompile(`^\s*(?:[-–—•·*]\s|\d{1,3}[.)]\s|\([a-zA-Z0-9]+\)\s)`)
	exhibitRE = regexp.MustCompile(`(?i)^(?:Exhibit|Figure|Table|Chart)\s+\d`)
)

// smallWords are lowercase words allowed mid-header in title case
var smallWords = map[string]bool{
	"and": true, "or": true, "the": true, "of": true, "for": true,
	"in": true, "to": true, "a": true, "an": true, "on": true,
	"at": true, "by": true, "vs": true, "vs.": true, "with": true,
	"from": true, "as": true,
}

// isHeader reports whether a line looks like a section header:
// short, mostly alphabetic, ALL CAPS or Title Case
func isHeader(line string) bool {
	if len(line) < 3 || len(line) > 80 {
		return false
	}

	alpha := 0
	for _, r := range line {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			alpha++
		}
	}
	if float64(alpha)/float64(len([]rune(line))) < 0.7 {
		return false
	}

	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 8 {
		return false
	}

	if line == strings.ToUpper(line) && strings.ContainsFunc(line, unicode.IsLetter) {
		return true
	}

	first := []rune(words[0])
	if !unicode.IsUpper(first[0]) {
		return false
	}
	for _, w := range words {
		r := []rune(w)
		if !unicode.IsUpper(r[0]) && !smallWords[strings.ToLower(w)] {
			return false
		}
	}
	return true
}

// segment is a typed span of page text with its nearest section header
type segment struct {
	text    string
	segType model.SegmentType
	section string
}

// segmentText splits page text into typed segments, tracking the
// current section as headers pass
func segmentText(text string) []segment {
	var segments []segment
	var buf []string
	bufType := model.SegmentParagraph
	currentSection := ""
	bufSection := ""

	flush := func() {
		if len(buf) > 0 {
			segments = append(segments, segment{
				text:    strings.Join(buf, "\n"),
				segType: bufType,
				section: bufSection,
			})
			buf = nil
			bufType = model.SegmentParagraph
		}
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)

		// Blank line is a segment boundary
		if line == "" {
			flush()
			bufSection = currentSection
			continue
		}

		// Section header starts a new segment and updates the section
		if isHeader(line) {
			flush()
			currentSection = line
			bufSection = currentSection
			buf = append(buf, line)
			bufType = model.SegmentParagraph
			continue
		}

		if exhibitRE.MatchString(line) {
			flush()
			buf = append(buf, line)
			bufType = model.SegmentExhibit
			bufSection = currentSection
			continue
		}

		if bulletRE.MatchString(line) {
			if bufType != model.SegmentBullet {
				flush()
				bufType = model.SegmentBullet
				bufSection = currentSection
			}
			buf = append(buf, line)
			continue
		}

		// Indented wraps continue the current bullet item
		if bufType == model.SegmentBullet {
			if strings.HasPrefix(rawLine, " ") || strings.HasPrefix(rawLine, "\t") {
				buf = append(buf, line)
				continue
			}
			flush()
			bufType = model.SegmentParagraph
			bufSection = currentSection
		}

		if len(buf) == 0 {
			bufSection = currentSection
		}
		buf = append(buf, line)
	}

	flush()
	return segments
}

// packSegments merges undersized and splits oversized segments to hit
// the token target
func packSegments(segments []segment) []segment {
	if len(segments) == 0 {
		return nil
	}

	var result []segment
	var bufTexts []string
	bufTypes := make(map[model.SegmentType]bool)
	bufSection := ""
	bufTokens := 0

	flushBuf := func() {
		if len(bufTexts) == 0 {
			return
		}
		segType := model.SegmentMixed
		if len(bufTypes) == 1 {
			for t := range bufTypes {
				segType = t
			}
		}
		result = append(result, segment{
			text:    strings.Join(bufTexts, "\n\n"),
			segType: segType,
			section: bufSection,
		})
		bufTexts = nil
		bufTypes = make(map[model.SegmentType]bool)
		bufSection = ""
		bufTokens = 0
	}

	for _, seg := range segments {
		tokens := EstimateTokens(seg.text)

		// Oversized single segment: flush buffer, split this one
		if tokens > MaxTokens {
			flushBuf()
			for _, piece := range splitOversized(seg.text) {
				result = append(result, segment{text: piece, segType: seg.segType, section: seg.section})
			}
			continue
		}

		if bufTokens+tokens > MaxTokens && len(bufTexts) > 0 {
			flushBuf()
		}

		bufTexts = append(bufTexts, seg.text)
		bufTypes[seg.segType] = true
		if bufSection == "" {
			bufSection = seg.section
		}
		bufTokens += tokens
	}

	flushBuf()
	return result
}

var sentenceEndRE = regexp.MustCompile(`([.!?])\s+`)

// splitOversized splits text at sentence boundaries to fit MaxTokens
func splitOversized(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []string{text}
	}

	var result []string
	var buf []string
	bufTokens := 0

	for _, sent := range sentences {
		sentTokens := EstimateTokens(sent)
		if bufTokens+sentTokens > MaxTokens && len(buf) > 0 {
			result = append(result, strings.Join(buf, " "))
			buf = nil
			bufTokens = 0
		}
		buf = append(buf, sent)
		bufTokens += sentTokens
	}

	if len(buf) > 0 {
		result = append(result, strings.Join(buf, " "))
	}
	return result
}

// splitSentences splits after sentence-ending punctuation followed by
// whitespace, keeping the punctuation with its sentence
func splitSentences(text string) []string {
	marked := sentenceEndRE.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	var out []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// pageSpan is one page's text with its 1-indexed number
type pageSpan struct {
	text string
	page int
}

// pages splits document text at its page markers. A document without
// markers is a single page.
func pages(doc model.Document) []pageSpan {
	if len(doc.PageMarkers) == 0 {
		return []pageSpan{{text: doc.Text, page: 1}}
	}

	var spans []pageSpan
	for i, start := range doc.PageMarkers {
		if start < 0 || start > len(doc.Text) {
			continue
		}
		end := len(doc.Text)
		if i+1 < len(doc.PageMarkers) && doc.PageMarkers[i+1] <= len(doc.Text) {
			end = doc.PageMarkers[i+1]
		}
		spans = append(spans, pageSpan{text: doc.Text[start:end], page: i + 1})
	}
	if len(spans) == 0 {
		return []pageSpan{{text: doc.Text, page: 1}}
	}
	return spans
}

// Document splits a document into atomic chunks with page linkage and
// segment metadata
func Document(doc model.Document) []model.Chunk {
	var chunks []model.Chunk
	idx := 0

	for _, ps := range pages(doc) {
		segments := segmentText(ps.text)
		packed := packSegments(segments)

		for _, seg := range packed {
			c := model.NewChunk(doc.DocID, idx, seg.text)
			c.PageStart = ps.page
			c.PageEnd = ps.page
			c.Section = seg.section
			c.SegmentType = seg.segType
			chunks = append(chunks, c)
			idx++
		}
	}

	return chunks
}
