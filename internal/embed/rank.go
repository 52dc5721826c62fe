package embed

import (
	"sort"
	"time"
)

// Scored pairs a relevance score with the crawl time used to break ties.
type Scored struct {
	ID        string
	Score     float64
	CrawledAt time.Time
}

// Rank sorts by score descending; ties go to the earlier crawl time. The
// sort is stable so equal items keep their input order.
func Rank(items []Scored) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].CrawledAt.Before(items[j].CrawledAt)
	})
}
