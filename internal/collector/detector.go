package collector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DetectorConfig controls the render-promotion heuristic.
type DetectorConfig struct {
	MinHTMLBytes int      `mapstructure:"min_html_bytes"`
	Selectors    []string `mapstructure:"selectors"`
	Keywords     []string `mapstructure:"keywords"`
}

// HeuristicDetector decides via simple HTML signals whether a probe fetch
// needs a headless render: tiny bodies, SPA bootstrap keywords, or missing
// required selectors.
type HeuristicDetector struct {
	minHTMLBytes int
	selectors    []string
	keywords     [][]byte
}

// NewHeuristicDetector constructs a detector with the configured thresholds.
func NewHeuristicDetector(cfg DetectorConfig) *HeuristicDetector {
	lowerKeywords := make([][]byte, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowerKeywords = append(lowerKeywords, bytes.ToLower([]byte(kw)))
	}
	return &HeuristicDetector{
		minHTMLBytes: cfg.MinHTMLBytes,
		selectors:    cfg.Selectors,
		keywords:     lowerKeywords,
	}
}

// NeedsRender inspects the page for signals that indicate JS rendering is
// required.
func (d *HeuristicDetector) NeedsRender(body []byte) bool {
	if d == nil {
		return false
	}
	switch {
	case d.bodyBelowThreshold(body):
		return true
	case d.containsKeywords(body):
		return true
	default:
		return d.missingSelectors(body)
	}
}

func (d *HeuristicDetector) bodyBelowThreshold(body []byte) bool {
	return d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes
}

func (d *HeuristicDetector) containsKeywords(body []byte) bool {
	if len(body) == 0 || len(d.keywords) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}

func (d *HeuristicDetector) missingSelectors(body []byte) bool {
	if len(d.selectors) == 0 || len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	for _, sel := range d.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() == 0 {
			return true
		}
	}
	return false
}
