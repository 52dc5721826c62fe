// Package extractor turns raw fetched content into clean text, metadata,
// and outbound links.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/webintel/webintel/internal/scrape"
)

// Candidate containers tried by the structured strategy, most specific first.
var contentSelectors = []string{
	"article",
	"main",
	"[role=main]",
	"#content",
	".post-content",
	".article-body",
	".entry-content",
	".content",
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Article extracts readable content from HTML with a structured-first,
// longest-block-fallback strategy.
type Article struct {
	logger *zap.Logger
}

// New builds an Article extractor.
func New(logger *zap.Logger) *Article {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Article{logger: logger}
}

// Extract implements scrape.Extractor. A page whose text is empty after both
// strategies fails with ErrExtractionFailed.
func (e *Article) Extract(_ context.Context, item scrape.RawItem) (scrape.ExtractedContent, error) {
	if isPlainText(item.ContentType) {
		text := collapseWhitespace(string(item.Body))
		if text == "" {
			return scrape.ExtractedContent{}, fmt.Errorf("%w: empty plain-text body for %s", scrape.ErrExtractionFailed, item.URL)
		}
		return scrape.ExtractedContent{Text: text, Metadata: map[string]string{}}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(item.Body))
	if err != nil {
		return scrape.ExtractedContent{}, fmt.Errorf("%w: parse html for %s: %v", scrape.ErrExtractionFailed, item.URL, err)
	}

	doc.Find("script, style, noscript, template, iframe").Remove()

	content := scrape.ExtractedContent{
		Title:    extractTitle(doc),
		Author:   extractAuthor(doc),
		Metadata: extractMetadata(doc),
		Links:    e.extractLinks(doc, item.URL),
	}
	if ts := extractPublished(doc); ts != nil {
		content.PublishedAt = ts
	}

	content.Text = structuredText(doc)
	if content.Text == "" {
		content.Text = longestBlockText(doc)
	}
	if content.Text == "" {
		return scrape.ExtractedContent{}, fmt.Errorf("%w: no usable text at %s", scrape.ErrExtractionFailed, item.URL)
	}
	return content, nil
}

// structuredText joins paragraph text from the densest candidate container.
func structuredText(doc *goquery.Document) string {
	best := ""
	for _, sel := range contentSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := paragraphText(s)
			if len(text) > len(best) {
				best = text
			}
		})
	}
	return best
}

// longestBlockText falls back to the parent element holding the longest run
// of paragraph text, then to the whole body.
func longestBlockText(doc *goquery.Document) string {
	blocks := map[*html.Node][]string{}
	var order []*html.Node

	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		parent := p.Parent()
		if len(parent.Nodes) == 0 {
			return
		}
		node := parent.Nodes[0]
		text := collapseWhitespace(p.Text())
		if text == "" {
			return
		}
		if _, seen := blocks[node]; !seen {
			order = append(order, node)
		}
		blocks[node] = append(blocks[node], text)
	})

	best := ""
	for _, node := range order {
		joined := strings.Join(blocks[node], "\n\n")
		if len(joined) > len(best) {
			best = joined
		}
	}
	if best != "" {
		return best
	}
	return collapseWhitespace(doc.Find("body").Text())
}

func paragraphText(s *goquery.Selection) string {
	var parts []string
	s.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := collapseWhitespace(p.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return collapseWhitespace(s.Text())
	}
	return strings.Join(parts, "\n\n")
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return collapseWhitespace(og)
	}
	if t := collapseWhitespace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return collapseWhitespace(doc.Find("h1").First().Text())
}

func extractAuthor(doc *goquery.Document) string {
	if a, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok {
		return collapseWhitespace(a)
	}
	if a, ok := doc.Find(`meta[property="article:author"]`).Attr("content"); ok {
		return collapseWhitespace(a)
	}
	return ""
}

func extractPublished(doc *goquery.Document) *time.Time {
	raw, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content")
	if !ok {
		raw, ok = doc.Find("time[datetime]").Attr("datetime")
	}
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range publishedLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

func extractMetadata(doc *goquery.Document) map[string]string {
	meta := map[string]string{}
	if d, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		meta["description"] = collapseWhitespace(d)
	}
	if d, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok && meta["description"] == "" {
		meta["description"] = collapseWhitespace(d)
	}
	if s, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok {
		meta["site_name"] = collapseWhitespace(s)
	}
	if lang, ok := doc.Find("html").Attr("lang"); ok {
		meta["lang"] = strings.TrimSpace(lang)
	}
	return meta
}

func (e *Article) extractLinks(doc *goquery.Document, pageURL string) []scrape.Link {
	base, err := url.Parse(pageURL)
	if err != nil {
		e.logger.Debug("unparseable base url, skipping links", zap.String("url", pageURL))
		return nil
	}
	baseHost := scrape.URLHost(pageURL)

	seen := map[string]struct{}{}
	var links []scrape.Link
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") {
			return
		}
		ref, parseErr := url.Parse(href)
		if parseErr != nil {
			return
		}
		abs := base.ResolveReference(ref)
		norm, normErr := scrape.NormalizeURL(abs.String())
		if normErr != nil {
			return
		}
		if _, dup := seen[norm]; dup {
			return
		}
		seen[norm] = struct{}{}
		links = append(links, scrape.Link{
			URL:        norm,
			AnchorText: collapseWhitespace(a.Text()),
			Internal:   scrape.URLHost(norm) == baseHost,
		})
	})
	return links
}

func isPlainText(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "text/plain")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
