package notifier

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/critiquewire/critiquewire/internal/model"
)

func TestLogNotifier_Notify_zeroArticles(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	n := NewLogNotifier(logger)
	if err := n.Notify(nil); err != nil {
		t.Errorf("Notify(nil) = %v, want nil", err)
	}
	if err := n.Notify([]model.CollectedArticle{}); err != nil {
		t.Errorf("Notify([]) = %v, want nil", err)
	}
}

func TestLogNotifier_Notify_multipleArticles_returnsNil(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	n := NewLogNotifier(logger)
	published := time.Now().Add(-30 * time.Minute)
	articles := []model.CollectedArticle{
		{SourceFeed: "reuters", Title: "Rate decision looms", URL: "https://example.com/1", PublishedAt: &published},
		{SourceFeed: "bbc", Title: "Storm hits coast", URL: "https://example.com/2"},
	}
	if err := n.Notify(articles); err != nil {
		t.Errorf("Notify(articles) = %v, want nil", err)
	}
}
