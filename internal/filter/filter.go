// Package filter decides which feed entries are worth collecting, based on
// optional title keyword lists. An empty filter matches everything.
package filter

import (
	"strings"

	"github.com/critiquewire/critiquewire/internal/model"
)

// Ensure TitleKeywordFilter implements model.EntryFilter.
var _ model.EntryFilter = (*TitleKeywordFilter)(nil)

// TitleKeywordFilter matches entries whose title contains at least one
// include keyword (if any are configured) and none of the exclude keywords.
// Matching is case-insensitive substring matching.
type TitleKeywordFilter struct {
	include []string
	exclude []string
}

// NewTitleKeywordFilter creates a filter from keyword lists. Keywords are
// lowercased once at construction.
func NewTitleKeywordFilter(include, exclude []string) *TitleKeywordFilter {
	return &TitleKeywordFilter{
		include: lowerAll(include),
		exclude: lowerAll(exclude),
	}
}

// Match reports whether the entry passes the keyword filters.
func (f *TitleKeywordFilter) Match(entry model.FeedEntry) bool {
	title := strings.ToLower(entry.Title)

	for _, kw := range f.exclude {
		if strings.Contains(title, kw) {
			return false
		}
	}

	if len(f.include) == 0 {
		return true
	}
	for _, kw := range f.include {
		if strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

func lowerAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
