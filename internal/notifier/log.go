package notifier

import (
	"log/slog"

	"github.com/critiquewire/critiquewire/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes newly collected articles to the given logger as
// structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each article via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each article with feed, title, URL, and published_at.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(articles []model.CollectedArticle) error {
	for _, a := range articles {
		args := []any{"feed", a.SourceFeed, "title", a.Title, "url", a.URL}
		if a.PublishedAt != nil {
			args = append(args, "published_at", *a.PublishedAt)
		}
		n.logger.Info("new article", args...)
	}
	return nil
}
