package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/critiquewire/critiquewire/internal/ai"
	"github.com/critiquewire/critiquewire/internal/browse"
	"github.com/critiquewire/critiquewire/internal/model"
	"github.com/critiquewire/critiquewire/internal/orchestrator"
	"github.com/critiquewire/critiquewire/internal/resolver"
	"github.com/critiquewire/critiquewire/internal/store"
)

// Cap on how many articles the browser loads at once.
const browseLimit = 500

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse collected articles interactively (TUI)",
	Long:  "Launches the split-pane article browser over the local database. Analysis can be triggered from the detail view when an API key is configured.",
	RunE:  runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	// The TUI owns the terminal; anything logged mid-session corrupts the
	// display, so wiring below gets a discard logger.
	silentLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var analyzer browse.ArticleAnalyzer
	if cfg.AI.APIKey != "" {
		httpClient := &http.Client{Timeout: 30 * time.Second}
		provider := ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, httpClient, silentLogger)
		res := resolver.NewReadabilityResolver(httpClient, 30*time.Second, silentLogger)
		analyzer = orchestrator.New(sqlStore, sqlStore, provider, res, cfg.AI.Timeout, silentLogger)
	}

	articles, err := browse.RunLoader("Loading articles", func(ctx context.Context) ([]model.CollectedArticle, error) {
		return sqlStore.ListArticles(ctx, browseLimit, 0)
	})
	if err != nil {
		return fmt.Errorf("load articles: %w", err)
	}
	if len(articles) == 0 {
		fmt.Println("No articles collected yet — run `critiquewire collect` first.")
		return nil
	}

	return browse.RunBrowseTUI(articles, sqlStore, analyzer)
}
