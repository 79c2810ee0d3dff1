// Package collector ingests configured feeds: fetch, parse, fingerprint,
// deduplicate, persist. Each feed is isolated — one feed's failure never
// aborts the others — and the outcome of every feed in a tick is reported
// as a FeedRunRecord.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/critiquewire/critiquewire/internal/fingerprint"
	"github.com/critiquewire/critiquewire/internal/model"
)

// FeedSource pairs a feed's identity with its fetcher, decorators included.
type FeedSource struct {
	ID      string
	Fetcher model.FeedFetcher
}

// Collector runs collection passes over a fixed set of feed sources.
type Collector struct {
	sources     []FeedSource
	store       model.ArticleStore
	filter      model.EntryFilter
	notifier    model.Notifier
	concurrency int
	retention   time.Duration
	logger      *slog.Logger
}

// New creates a collector. concurrency bounds how many feeds are fetched in
// parallel within one pass; retention controls post-pass article cleanup
// (zero disables it). filter and notifier may be nil.
func New(
	sources []FeedSource,
	store model.ArticleStore,
	filter model.EntryFilter,
	notifier model.Notifier,
	concurrency int,
	retention time.Duration,
	logger *slog.Logger,
) *Collector {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Collector{
		sources:     sources,
		store:       store,
		filter:      filter,
		notifier:    notifier,
		concurrency: concurrency,
		retention:   retention,
		logger:      logger,
	}
}

// CollectAll processes every configured feed once, in parallel up to the
// concurrency bound, and returns one record per feed. It never returns an
// error: failures are contained in the records.
func (c *Collector) CollectAll(ctx context.Context) []model.FeedRunRecord {
	records := make([]model.FeedRunRecord, len(c.sources))
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for i, source := range c.sources {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, source FeedSource) {
			defer wg.Done()
			defer func() { <-sem }()
			records[i] = c.collectFeed(ctx, source)
		}(i, source)
	}
	wg.Wait()

	var found, added int
	for _, r := range records {
		found += r.ItemsFound
		added += r.ItemsNew
	}
	c.logger.Info("collection pass finished",
		"feeds", len(c.sources),
		"items_found", found,
		"items_new", added,
	)

	if c.retention > 0 {
		deleted, err := c.store.CleanupArticles(ctx, c.retention)
		if err != nil {
			c.logger.Error("article cleanup failed", "error", err)
		} else if deleted > 0 {
			c.logger.Info("cleaned up old articles", "deleted", deleted)
		}
	}
	return records
}

// collectFeed runs one feed through fetch → filter → fingerprint → dedup →
// persist → notify, and reports the outcome.
func (c *Collector) collectFeed(ctx context.Context, source FeedSource) model.FeedRunRecord {
	record := model.FeedRunRecord{
		FeedID:    source.ID,
		StartedAt: time.Now().UTC(),
	}

	entries, err := source.Fetcher.FetchEntries(ctx)
	if err != nil {
		c.logger.Error("feed fetch failed", "feed", source.ID, "error", err)
		record.FinishedAt = time.Now().UTC()
		record.Outcome = model.RunFailed
		record.Err = err
		return record
	}
	record.ItemsFound = len(entries)

	var newArticles []model.CollectedArticle
	skipped := 0
	persisted := 0
	var persistErr error
	for _, entry := range entries {
		if c.filter != nil && !c.filter.Match(entry) {
			continue
		}

		article, err := c.buildArticle(source.ID, entry)
		if err != nil {
			c.logger.Debug("skipping malformed entry", "feed", source.ID, "url", entry.URL, "error", err)
			skipped++
			continue
		}

		created, err := c.store.CreateArticleIfAbsent(ctx, article)
		if err != nil {
			c.logger.Error("persisting article failed", "feed", source.ID, "url", entry.URL, "error", err)
			skipped++
			persistErr = err
			continue
		}
		persisted++
		if created {
			newArticles = append(newArticles, *article)
		}
	}
	record.ItemsNew = len(newArticles)
	record.FinishedAt = time.Now().UTC()
	switch {
	case persistErr != nil && persisted == 0:
		// Every persist attempt failed: the store is down, not the entries
		// malformed. Partial would understate that.
		record.Outcome = model.RunFailed
		record.Err = persistErr
	case skipped > 0:
		record.Outcome = model.RunPartial
	default:
		record.Outcome = model.RunSuccess
	}

	if c.notifier != nil && len(newArticles) > 0 {
		if err := c.notifier.Notify(newArticles); err != nil {
			c.logger.Error("notify failed", "feed", source.ID, "error", err)
		}
	}

	c.logger.Info("collected feed",
		"feed", source.ID,
		"found", record.ItemsFound,
		"new", record.ItemsNew,
		"outcome", record.Outcome,
	)
	return record
}

// buildArticle fingerprints an entry and shapes it for storage. The content
// hash covers the richest text available so syndicated copies under
// different URLs still collide.
func (c *Collector) buildArticle(feedID string, entry model.FeedEntry) (*model.CollectedArticle, error) {
	normalizedURL, err := fingerprint.NormalizeURL(entry.URL)
	if err != nil {
		return nil, err
	}

	hashInput := entry.Body
	if hashInput == "" {
		hashInput = entry.Summary
	}
	if hashInput == "" {
		hashInput = entry.Title
	}

	return &model.CollectedArticle{
		ID:            uuid.NewString(),
		SourceFeed:    feedID,
		URL:           entry.URL,
		NormalizedURL: normalizedURL,
		ContentHash:   fingerprint.HashContent(hashInput),
		Title:         entry.Title,
		Summary:       entry.Summary,
		Body:          entry.Body,
		PublishedAt:   entry.PublishedAt,
		CollectedAt:   time.Now().UTC(),
	}, nil
}
