package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/critiquewire/critiquewire/internal/collector"
	"github.com/critiquewire/critiquewire/internal/filter"
	"github.com/critiquewire/critiquewire/internal/model"
	"github.com/critiquewire/critiquewire/internal/store"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection pass and exit",
	Long:  "Fetches every enabled feed once, persists new articles, and exits.",
	RunE:  runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
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

	httpClient := &http.Client{Timeout: 30 * time.Second}
	entryFilter := filter.NewTitleKeywordFilter(
		cfg.Filters.TitleKeywords,
		cfg.Filters.TitleExcludeKeywords,
	)
	n := setupNotifier(cfg, httpClient, logger)

	sources := buildSources(cfg, httpClient, logger)
	if len(sources) == 0 {
		logger.Error("no feeds to collect")
		os.Exit(1)
	}

	coll := collector.New(
		sources,
		sqlStore,
		entryFilter,
		n,
		cfg.Collection.Concurrency,
		cfg.Collection.Retention,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records := coll.CollectAll(ctx)

	failed := 0
	for _, r := range records {
		if r.Outcome == model.RunFailed {
			failed++
		}
	}
	logger.Info("collection complete", "feeds", len(records), "failed", failed)
	return nil
}
