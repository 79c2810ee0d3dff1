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
	"github.com/critiquewire/critiquewire/internal/scheduler"
	"github.com/critiquewire/critiquewire/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the collection daemon",
	Long:  "Start the feed-collection scheduler; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"interval", cfg.Collection.Interval.String(),
		"feeds", len(cfg.EnabledFeeds()),
		"concurrency", cfg.Collection.Concurrency,
		"retention", cfg.Collection.Retention.String(),
	)

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

	sched := scheduler.NewCollectionScheduler(coll, cfg.Collection.Interval, cfg.Collection.ShutdownTimeout, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
