package collect

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/nkarev/driftbrief/internal/model"
	"github.com/nkarev/driftbrief/internal/util"
	"github.com/nkarev/driftbrief/internal/worker"
)

// RSSSource collects documents from one RSS/Atom feed. Substack posts
// and podcast show notes both publish feeds; this is the main intake
// path for independent research.
type RSSSource struct {
	name       string
	url        string
	sourceType model.SourceType
	httpClient *http.Client
	parser     *gofeed.Parser
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	userAgent  string
}

// RSSOptions shares fetch infrastructure across feeds
type RSSOptions struct {
	Timeout   time.Duration
	UserAgent string
	Robots    *util.RobotsChecker
	Limiter   *worker.Limiter
}

// NewRSSSource creates a source for one feed
func NewRSSSource(cfg model.FeedConfig, opts RSSOptions) *RSSSource {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &RSSSource{
		name:       cfg.Name,
		url:        cfg.URL,
		sourceType: cfg.SourceType,
		httpClient: &http.Client{Timeout: timeout},
		parser:     gofeed.NewParser(),
		robots:     opts.Robots,
		limiter:    opts.Limiter,
		userAgent:  opts.UserAgent,
	}
}

// Name identifies the source in logs and stats
func (s *RSSSource) Name() string { return s.name }

// Collect fetches and parses the feed into documents
func (s *RSSSource) Collect(ctx context.Context) ([]model.Document, error) {
	if s.robots != nil {
		allowed, crawlDelay, err := s.robots.CanFetch(ctx, s.url)
		if err == nil && !allowed {
			return nil, fmt.Errorf("robots.txt disallows %s", s.url)
		}
		if crawlDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(crawlDelay):
			}
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, s.url); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var docs []model.Document
	for _, item := range feed.Items {
		doc, ok := s.itemToDocument(item)
		if !ok {
			continue
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// itemToDocument converts one feed item. Items without a title or any
// body text are dropped.
func (s *RSSSource) itemToDocument(item *gofeed.Item) (model.Document, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return model.Document{}, false
	}

	// Prefer full content over the summary
	body := item.Content
	if body == "" {
		body = item.Description
	}
	text := StripHTML(body)
	if text == "" {
		return model.Document{}, false
	}

	doc := model.NewDocument(s.name, s.sourceType, title, text)
	doc.URL = item.Link

	if len(item.Authors) > 0 && item.Authors[0] != nil {
		doc.Analyst = item.Authors[0].Name
	}
	if item.PublishedParsed != nil {
		doc.DatePublished = item.PublishedParsed.Format("2006-01-02")
	}

	return doc, true
}

// StripHTML extracts visible text from HTML, skipping scripts and styles
func StripHTML(content string) string {
	if content == "" {
		return ""
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(content)
	}

	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n") {
					buf.WriteString(" ")
				}
				buf.WriteString(text)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		// Block-level boundaries become paragraph breaks so the
		// chunker sees structure the feed had
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4":
				if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "\n\n") {
					buf.WriteString("\n\n")
				}
			}
		}
	}

	walk(doc)
	return strings.TrimSpace(buf.String())
}
