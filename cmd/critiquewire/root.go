package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/critiquewire/critiquewire/internal/collector"
	"github.com/critiquewire/critiquewire/internal/config"
	"github.com/critiquewire/critiquewire/internal/model"
	"github.com/critiquewire/critiquewire/internal/notifier"
	"github.com/critiquewire/critiquewire/internal/ratelimit"
	"github.com/critiquewire/critiquewire/internal/retry"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "critiquewire",
	Short: "News analysis pipeline — collect feeds, analyze articles",
	Long:  "CritiqueWire collects news feeds on a schedule and runs AI analysis (bias, sentiment, claims, fact-check, credibility, summary) over articles.",
	// Default to `start` so that `critiquewire` with no args runs the daemon.
	// This preserves compatibility with systemd unit files that invoke the binary directly.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: CRITIQUEWIRE_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > CRITIQUEWIRE_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("CRITIQUEWIRE_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// buildSources turns enabled feed configs into fetch sources, each wrapped
// with retry and host-level rate limiting.
func buildSources(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) []collector.FeedSource {
	limiter := ratelimit.NewHostRateLimiter(cfg.RateLimit.MinDelay)
	logger.Info("rate limiter configured", "min_delay", cfg.RateLimit.MinDelay.String())

	var sources []collector.FeedSource
	for _, feed := range cfg.EnabledFeeds() {
		var fetcher model.FeedFetcher = collector.NewRSSFetcher(feed.URL, httpClient)
		fetcher = retry.NewRetryFetcher(fetcher, cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, logger)
		fetcher = ratelimit.NewRateLimitedFetcher(fetcher, limiter, ratelimit.HostOf(feed.URL))

		sources = append(sources, collector.FeedSource{ID: feed.ID, Fetcher: fetcher})
		logger.Info("registered feed", "id", feed.ID, "url", feed.URL)
	}
	return sources
}
