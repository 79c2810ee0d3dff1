package model

import (
	"context"
	"time"
)

// CollectedArticle is one article first seen by the feed collector.
// Records are immutable after creation except for the job back-reference.
type CollectedArticle struct {
	ID            string
	SourceFeed    string
	URL           string // canonical URL, unique across the corpus
	NormalizedURL string // dedup key derived from URL
	ContentHash   string // secondary dedup key over normalized body text
	Title         string
	Summary       string
	Body          string
	PublishedAt   *time.Time // nullable, feeds don't always provide it
	CollectedAt   time.Time
	AnalysisJobID string // set once on-demand analysis is requested, else empty
}

// FeedEntry is one candidate article parsed out of a feed document.
type FeedEntry struct {
	URL         string
	Title       string
	Summary     string
	Body        string
	PublishedAt *time.Time
}

// RunOutcome classifies one feed's processing within a collection tick.
type RunOutcome string

const (
	RunSuccess RunOutcome = "success"
	RunPartial RunOutcome = "partial"
	RunFailed  RunOutcome = "failed"
)

// FeedRunRecord captures the outcome of processing one feed in one tick.
// Used for failure isolation and observability only.
type FeedRunRecord struct {
	FeedID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    RunOutcome
	ItemsFound int
	ItemsNew   int
	Err        error
}

// FeedFetcher fetches and parses one feed endpoint into candidate entries.
type FeedFetcher interface {
	FetchEntries(ctx context.Context) ([]FeedEntry, error)
}

// EntryFilter decides whether a feed entry should be collected.
type EntryFilter interface {
	Match(entry FeedEntry) bool
}

// Notifier announces newly collected articles.
type Notifier interface {
	Notify(articles []CollectedArticle) error
}

// ArticleStore persists collected articles with unique constraints on both
// normalized URL and content hash; a clash on either means "already seen".
type ArticleStore interface {
	// CreateArticleIfAbsent inserts the article unless one with the same
	// normalized URL or content hash exists. Returns created == false on a
	// duplicate without modifying the stored record.
	CreateArticleIfAbsent(ctx context.Context, article *CollectedArticle) (created bool, err error)
	GetArticle(ctx context.Context, id string) (*CollectedArticle, error)
	ListArticles(ctx context.Context, limit, offset int) ([]CollectedArticle, error)
	LinkArticleToJob(ctx context.Context, articleID, jobID string) error
	// CleanupArticles deletes articles collected before the retention window.
	CleanupArticles(ctx context.Context, olderThan time.Duration) (int64, error)
}
