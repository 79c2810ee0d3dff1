package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/critiquewire/critiquewire/internal/ai"
	"github.com/critiquewire/critiquewire/internal/model"
	"github.com/critiquewire/critiquewire/internal/orchestrator"
	"github.com/critiquewire/critiquewire/internal/resolver"
	"github.com/critiquewire/critiquewire/internal/store"
)

var (
	analyzeURL   string
	analyzeText  string
	analyzeKinds string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one article and print the result",
	Long:  "Submits a synchronous analysis of a URL or raw text and prints the result. Repeat submissions of the same content reuse the stored job.",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeURL, "url", "", "article URL to resolve and analyze")
	analyzeCmd.Flags().StringVar(&analyzeText, "text", "", "raw article text to analyze")
	analyzeCmd.Flags().StringVar(&analyzeKinds, "kinds", "", "comma-separated analysis kinds (default: all)")
	rootCmd.AddCommand(analyzeCmd)
}

func parseKinds(raw string) ([]model.AnalysisKind, error) {
	if raw == "" {
		return model.AllKinds(), nil
	}
	var kinds []model.AnalysisKind
	for _, part := range strings.Split(raw, ",") {
		k := model.AnalysisKind(strings.TrimSpace(part))
		if !model.ValidKind(k) {
			return nil, fmt.Errorf("unknown analysis kind %q", k)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.AI.APIKey == "" {
		logger.Error("ai.api_key is required for analysis")
		os.Exit(1)
	}

	kinds, err := parseKinds(analyzeKinds)
	if err != nil {
		return err
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	provider := ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, httpClient, logger)
	res := resolver.NewReadabilityResolver(httpClient, 30*time.Second, logger)
	orch := orchestrator.New(sqlStore, sqlStore, provider, res, cfg.AI.Timeout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ref := model.ContentRef{Text: analyzeText, URL: analyzeURL}
	job, err := orch.Submit(ctx, ref, kinds, model.ModeSync)
	if err != nil {
		return err
	}

	printJob(job)
	if job.Status == model.StatusFailed {
		os.Exit(1)
	}
	return nil
}

func printJob(job *model.AnalysisJob) {
	fmt.Printf("Job:    %s\n", job.ID)
	fmt.Printf("Status: %s\n", job.Status)

	if job.Error != nil {
		fmt.Printf("Error:  %s (retriable: %t)\n", job.Error.Message, job.Error.Retriable)
		return
	}

	r := job.Result
	if r == nil {
		return
	}
	fmt.Printf("Score:  %.2f  (model %s, took %s)\n", r.Score, r.Model, r.Duration.Round(time.Millisecond))

	if r.Summary != nil {
		fmt.Printf("\nSummary: %s\n%s\n", r.Summary.Headline, r.Summary.Text)
		for _, pt := range r.Summary.KeyPoints {
			fmt.Printf("  • %s\n", pt)
		}
	}
	if r.Bias != nil {
		fmt.Printf("\nBias: %s (%.2f)\n", r.Bias.Leaning, r.Bias.Score)
		if r.Bias.Explanation != "" {
			fmt.Printf("  %s\n", r.Bias.Explanation)
		}
	}
	if r.Sentiment != nil {
		fmt.Printf("\nSentiment: %s (%.2f, confidence %.2f)\n", r.Sentiment.Overall, r.Sentiment.Score, r.Sentiment.Confidence)
	}
	if r.Credibility != nil {
		fmt.Printf("\nCredibility: %s (%.2f)\n", r.Credibility.Rating, r.Credibility.Score)
		for _, flag := range r.Credibility.RedFlags {
			fmt.Printf("  ⚑ %s\n", flag)
		}
	}
	if len(r.Claims) > 0 {
		verdicts := make(map[string]model.FactCheckVerdict, len(r.FactCheck))
		for _, v := range r.FactCheck {
			verdicts[v.ClaimID] = v
		}
		fmt.Println("\nClaims:")
		for _, c := range r.Claims {
			fmt.Printf("  • [%s] %s", c.Importance, c.Statement)
			if v, ok := verdicts[c.ID]; ok {
				fmt.Printf(" — %s (%.2f)", v.Verdict, v.Confidence)
			}
			fmt.Println()
		}
	}
	if len(r.FailedKinds) > 0 {
		kinds := make([]string, len(r.FailedKinds))
		for i, k := range r.FailedKinds {
			kinds[i] = string(k)
		}
		fmt.Printf("\nUnavailable: %s\n", strings.Join(kinds, ", "))
	}
}
