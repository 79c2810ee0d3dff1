package collector

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmcdole/gofeed"

	"github.com/critiquewire/critiquewire/internal/model"
)

// Ensure RSSFetcher implements model.FeedFetcher.
var _ model.FeedFetcher = (*RSSFetcher)(nil)

const userAgent = "Mozilla/5.0 (compatible; CritiqueWire/1.0; +https://critiquewire.com)"

// RSSFetcher fetches one RSS/Atom endpoint and parses it into candidate
// entries. Malformed items are skipped individually; only a document-level
// fetch or parse failure fails the whole call.
type RSSFetcher struct {
	endpoint   string
	httpClient *http.Client
	parser     *gofeed.Parser
}

// NewRSSFetcher creates a fetcher for a single feed endpoint.
func NewRSSFetcher(endpoint string, httpClient *http.Client) *RSSFetcher {
	return &RSSFetcher{
		endpoint:   endpoint,
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
	}
}

// FetchEntries downloads and parses the feed document.
func (f *RSSFetcher) FetchEntries(ctx context.Context) ([]model.FeedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", f.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("fetching feed %s", f.endpoint),
		}
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", f.endpoint, err)
	}

	entries := make([]model.FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || item.Link == "" || item.Title == "" {
			// Malformed item, skip it and keep the rest.
			continue
		}
		entry := model.FeedEntry{
			URL:         item.Link,
			Title:       item.Title,
			Summary:     item.Description,
			Body:        item.Content,
			PublishedAt: item.PublishedParsed,
		}
		if entry.Body == "" {
			entry.Body = item.Description
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
