// Package orchestrator owns the analysis job state machine: submission,
// fingerprint coalescing, sync/async execution, and terminal-status
// persistence. Every transition is written to the job store before anyone
// can observe it; the store is the only source of job status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/critiquewire/critiquewire/internal/fingerprint"
	"github.com/critiquewire/critiquewire/internal/model"
)

// defaultPollInterval paces sync callers that coalesced onto a job another
// caller is executing.
const defaultPollInterval = 100 * time.Millisecond

// Orchestrator drives analysis jobs from submission to terminal status.
type Orchestrator struct {
	jobs     model.JobStore
	articles model.ArticleStore
	provider model.AnalysisProvider
	resolver model.ContentResolver
	timeout  time.Duration // provider call deadline
	poll     time.Duration
	logger   *slog.Logger
}

// New creates an orchestrator wired with its collaborators. timeout bounds
// each provider call; on expiry the job fails with a timeout cause.
func New(
	jobs model.JobStore,
	articles model.ArticleStore,
	provider model.AnalysisProvider,
	resolver model.ContentResolver,
	timeout time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		jobs:     jobs,
		articles: articles,
		provider: provider,
		resolver: resolver,
		timeout:  timeout,
		poll:     defaultPollInterval,
		logger:   logger,
	}
}

// Submit accepts an analysis request. In async mode it returns as soon as
// the job is persisted; in sync mode it blocks until the job is terminal.
// Concurrent submissions with the same fingerprint coalesce onto one job:
// at most one provider call runs per fingerprint, and a completed prior job
// is returned directly with no provider call.
func (o *Orchestrator) Submit(ctx context.Context, ref model.ContentRef, kinds []model.AnalysisKind, mode model.ExecutionMode) (*model.AnalysisJob, error) {
	if err := validate(ref, kinds); err != nil {
		return nil, err
	}

	fp, err := fingerprint.New(ref.URL, ref.Text)
	if err != nil {
		return nil, &model.ValidationError{Reason: err.Error()}
	}

	now := time.Now().UTC()
	job := &model.AnalysisJob{
		ID:          uuid.NewString(),
		Fingerprint: fp.Key(),
		Content:     ref,
		Kinds:       kinds,
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stored, created, err := o.jobs.CreateJobIfAbsent(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if !created {
		// Coalesced onto an existing job. Completed jobs are returned as-is;
		// in-flight jobs are awaited in sync mode, handed back in async mode.
		o.logger.Debug("submission coalesced",
			"job_id", stored.ID,
			"fingerprint", stored.Fingerprint,
			"status", stored.Status,
		)
		if stored.Status.Terminal() || mode == model.ModeAsync {
			return stored, nil
		}
		return o.waitTerminal(ctx, stored.ID)
	}

	// Execution always runs on a context detached from the caller: a created
	// job must reach terminal status even if the submitter gives up mid-call,
	// otherwise its fingerprint would coalesce every later submission onto a
	// job stuck at processing.
	execCtx := context.WithoutCancel(ctx)
	if mode == model.ModeSync {
		o.execute(execCtx, stored)
		return o.jobs.GetJob(execCtx, stored.ID)
	}

	go o.execute(execCtx, stored)
	return stored, nil
}

// Get returns the current job snapshot, or model.ErrNotFound.
func (o *Orchestrator) Get(ctx context.Context, id string) (*model.AnalysisJob, error) {
	return o.jobs.GetJob(ctx, id)
}

// AnalyzeArticle submits an on-demand analysis of a collected article and
// links the article to the job. The analysis is shared: repeated requests
// for the same article coalesce or return the completed job.
func (o *Orchestrator) AnalyzeArticle(ctx context.Context, articleID string, kinds []model.AnalysisKind, mode model.ExecutionMode) (*model.AnalysisJob, error) {
	article, err := o.articles.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}

	// Prefer the stored body: it is already resolved and keeps the
	// fingerprint stable across requests even if the page changes.
	ref := model.ContentRef{URL: article.URL}
	if article.Body != "" {
		ref = model.ContentRef{Text: article.Body}
	}

	job, err := o.Submit(ctx, ref, kinds, mode)
	if err != nil {
		return nil, err
	}

	if err := o.articles.LinkArticleToJob(ctx, articleID, job.ID); err != nil {
		o.logger.Error("linking article to job failed",
			"article_id", articleID,
			"job_id", job.ID,
			"error", err,
		)
	}
	return job, nil
}

// execute drives one job owned by this call: pending → processing →
// completed|failed. Only the submission that created the job runs execute,
// which is what keeps provider calls at one per fingerprint.
func (o *Orchestrator) execute(ctx context.Context, job *model.AnalysisJob) {
	if err := o.jobs.UpdateStatus(ctx, job.ID, model.StatusProcessing, nil, nil); err != nil {
		o.logger.Error("transition to processing failed", "job_id", job.ID, "error", err)
		return
	}

	content := job.Content.Text
	if job.Content.URL != "" {
		text, err := o.resolver.Resolve(ctx, job.Content.URL)
		if err != nil {
			o.fail(ctx, job.ID, err.Error(), false)
			return
		}
		content = text
	}

	providerCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	result, err := o.provider.Analyze(providerCtx, content, job.Kinds)
	if err != nil {
		msg := err.Error()
		retriable := false
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(providerCtx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("analysis timed out after %s", o.timeout)
			retriable = true
		} else {
			var provErr *model.ProviderError
			if errors.As(err, &provErr) {
				retriable = provErr.Retriable
			}
		}
		o.fail(ctx, job.ID, msg, retriable)
		return
	}

	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}

	if err := o.jobs.UpdateStatus(ctx, job.ID, model.StatusCompleted, result, nil); err != nil {
		o.logger.Error("transition to completed failed", "job_id", job.ID, "error", err)
		return
	}
	o.logger.Info("analysis completed",
		"job_id", job.ID,
		"kinds", len(job.Kinds),
		"failed_kinds", len(result.FailedKinds),
		"duration", result.Duration.String(),
	)
}

func (o *Orchestrator) fail(ctx context.Context, jobID, message string, retriable bool) {
	jobErr := &model.JobError{Message: message, Retriable: retriable}
	if err := o.jobs.UpdateStatus(ctx, jobID, model.StatusFailed, nil, jobErr); err != nil {
		o.logger.Error("transition to failed failed", "job_id", jobID, "error", err)
		return
	}
	o.logger.Warn("analysis failed", "job_id", jobID, "cause", message, "retriable", retriable)
}

// waitTerminal polls the store until the job reaches a terminal status.
// Status always comes from the store so a waiter in one process observes
// transitions made by another.
func (o *Orchestrator) waitTerminal(ctx context.Context, id string) (*model.AnalysisJob, error) {
	for {
		job, err := o.jobs.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for job %s: %w", id, ctx.Err())
		case <-time.After(o.poll):
		}
	}
}

func validate(ref model.ContentRef, kinds []model.AnalysisKind) error {
	if ref.Text == "" && ref.URL == "" {
		return &model.ValidationError{Reason: "either text or url is required"}
	}
	if ref.Text != "" && ref.URL != "" {
		return &model.ValidationError{Reason: "text and url are mutually exclusive"}
	}
	if len(kinds) == 0 {
		return &model.ValidationError{Reason: "at least one analysis kind is required"}
	}
	for _, k := range kinds {
		if !model.ValidKind(k) {
			return &model.ValidationError{Reason: fmt.Sprintf("unknown analysis kind %q", k)}
		}
	}
	return nil
}
