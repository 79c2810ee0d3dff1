package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/critiquewire/critiquewire/internal/model"
)

// --- In-memory fakes ---

// memJobStore implements model.JobStore with the same atomicity contract as
// the SQLite store, and records every status transition for assertions.
type memJobStore struct {
	mu          sync.Mutex
	jobs        map[string]*model.AnalysisJob
	transitions map[string][]model.JobStatus
}

func newMemJobStore() *memJobStore {
	return &memJobStore{
		jobs:        make(map[string]*model.AnalysisJob),
		transitions: make(map[string][]model.JobStatus),
	}
}

func (s *memJobStore) CreateJobIfAbsent(_ context.Context, job *model.AnalysisJob) (*model.AnalysisJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.Fingerprint == job.Fingerprint && existing.Status != model.StatusFailed {
			cp := *existing
			return &cp, false, nil
		}
	}
	cp := *job
	s.jobs[job.ID] = &cp
	s.transitions[job.ID] = []model.JobStatus{job.Status}
	out := cp
	return &out, true, nil
}

func (s *memJobStore) UpdateStatus(_ context.Context, id string, status model.JobStatus, result *model.AnalysisResult, jobErr *model.JobError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.ErrNotFound
	}
	if job.Status.Terminal() {
		return model.ErrTerminalStatus
	}
	job.Status = status
	job.Result = result
	job.Error = jobErr
	job.UpdatedAt = time.Now().UTC()
	s.transitions[id] = append(s.transitions[id], status)
	return nil
}

func (s *memJobStore) GetJob(_ context.Context, id string) (*model.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memJobStore) FindJobByFingerprint(_ context.Context, fingerprint string) (*model.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.Fingerprint == fingerprint {
			cp := *job
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *memJobStore) transitionsFor(id string) []model.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.JobStatus(nil), s.transitions[id]...)
}

// memArticleStore implements just enough of model.ArticleStore.
type memArticleStore struct {
	mu       sync.Mutex
	articles map[string]*model.CollectedArticle
}

func newMemArticleStore() *memArticleStore {
	return &memArticleStore{articles: make(map[string]*model.CollectedArticle)}
}

func (s *memArticleStore) CreateArticleIfAbsent(_ context.Context, a *model.CollectedArticle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[a.ID] = a
	return true, nil
}

func (s *memArticleStore) GetArticle(_ context.Context, id string) (*model.CollectedArticle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memArticleStore) ListArticles(context.Context, int, int) ([]model.CollectedArticle, error) {
	return nil, nil
}

func (s *memArticleStore) LinkArticleToJob(_ context.Context, articleID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[articleID]
	if !ok {
		return model.ErrNotFound
	}
	a.AnalysisJobID = jobID
	return nil
}

func (s *memArticleStore) CleanupArticles(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

// fakeProvider returns a canned result covering the requested kinds.
type fakeProvider struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	block func(ctx context.Context) error // overrides delay when set
}

func (p *fakeProvider) Analyze(ctx context.Context, _ string, kinds []model.AnalysisKind) (*model.AnalysisResult, error) {
	p.calls.Add(1)
	if p.block != nil {
		if err := p.block(ctx); err != nil {
			return nil, err
		}
	} else if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if p.err != nil {
		return nil, p.err
	}

	result := &model.AnalysisResult{Model: "fake-model", Score: 0.9}
	for _, k := range kinds {
		switch k {
		case model.KindBias:
			result.Bias = &model.BiasAnalysis{Leaning: "center", Score: 0.1}
		case model.KindSentiment:
			result.Sentiment = &model.SentimentAnalysis{Overall: "neutral", Confidence: 0.8}
		case model.KindSummary:
			result.Summary = &model.Summary{Headline: "h", Text: "t"}
		case model.KindClaims:
			result.Claims = []model.Claim{{ID: "c1", Statement: "s", Importance: "high"}}
		case model.KindFactCheck:
			result.FactCheck = []model.FactCheckVerdict{{ClaimID: "c1", Verdict: "supported"}}
		case model.KindCredibility:
			result.Credibility = &model.CredibilityAssessment{Rating: "high", Score: 0.9}
		}
	}
	return result, nil
}

type fakeResolver struct {
	calls atomic.Int32
	text  string
	err   error
}

func (r *fakeResolver) Resolve(context.Context, string) (string, error) {
	r.calls.Add(1)
	if r.err != nil {
		return "", r.err
	}
	return r.text, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(jobs model.JobStore, articles model.ArticleStore, provider model.AnalysisProvider, res model.ContentResolver) *Orchestrator {
	o := New(jobs, articles, provider, res, 2*time.Second, discardLogger())
	o.poll = 5 * time.Millisecond
	return o
}

var textRef = model.ContentRef{Text: "Parliament passed the budget bill on Tuesday."}

// --- Tests ---

func TestSubmit_SyncTextCompletes(t *testing.T) {
	jobs := newMemJobStore()
	provider := &fakeProvider{}
	o := newTestOrchestrator(jobs, newMemArticleStore(), provider, &fakeResolver{})

	kinds := []model.AnalysisKind{model.KindBias, model.KindSentiment}
	job, err := o.Submit(t.Context(), textRef, kinds, model.ModeSync)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != model.StatusCompleted {
		t.Fatalf("Status = %s, want completed", job.Status)
	}
	if !job.Result.Has(model.KindBias) || !job.Result.Has(model.KindSentiment) {
		t.Errorf("result missing requested kinds: %+v", job.Result)
	}
	if job.Error != nil {
		t.Error("completed job must not carry an error")
	}
	if got := provider.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}

	want := []model.JobStatus{model.StatusPending, model.StatusProcessing, model.StatusCompleted}
	got := jobs.transitionsFor(job.ID)
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}
}

func TestSubmit_AsyncReturnsPendingThenCompletes(t *testing.T) {
	jobs := newMemJobStore()
	provider := &fakeProvider{delay: 30 * time.Millisecond}
	o := newTestOrchestrator(jobs, newMemArticleStore(), provider, &fakeResolver{})

	job, err := o.Submit(t.Context(), textRef, []model.AnalysisKind{model.KindSummary}, model.ModeAsync)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status.Terminal() {
		t.Fatalf("async submit returned terminal status %s immediately", job.Status)
	}

	deadline := time.After(2 * time.Second)
	for {
		got, err := o.Get(t.Context(), job.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status == model.StatusCompleted {
			if !got.Result.Has(model.KindSummary) {
				t.Errorf("result missing summary: %+v", got.Result)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed, status = %s", got.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubmit_ConcurrentDuplicatesCoalesce(t *testing.T) {
	jobs := newMemJobStore()
	provider := &fakeProvider{delay: 50 * time.Millisecond}
	o := newTestOrchestrator(jobs, newMemArticleStore(), provider, &fakeResolver{})

	const n = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := o.Submit(t.Context(), textRef, []model.AnalysisKind{model.KindBias}, model.ModeSync)
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			if job.Status != model.StatusCompleted {
				t.Errorf("Status = %s, want completed", job.Status)
			}
			mu.Lock()
			ids[job.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want exactly 1 for identical content", got)
	}
	if len(ids) != 1 {
		t.Errorf("distinct job ids = %d, want 1", len(ids))
	}
}

func TestSubmit_CompletedJobReturnedWithoutProviderCall(t *testing.T) {
	jobs := newMemJobStore()
	provider := &fakeProvider{}
	o := newTestOrchestrator(jobs, newMemArticleStore(), provider, &fakeResolver{})

	first, err := o.Submit(t.Context(), textRef, []model.AnalysisKind{model.KindBias}, model.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if provider.calls.Load() != 1 {
		t.Fatalf("setup: provider calls = %d", provider.calls.Load())
	}

	second, err := o.Submit(t.Context(), textRef, []model.AnalysisKind{model.KindBias}, model.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("second.ID = %s, want cached job %s", second.ID, first.ID)
	}
	if second.Status != model.StatusCompleted {
		t.Errorf("Status = %s, want completed", second.Status)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want still 1", got)
	}
}

func TestSubmit_ResolutionFailureFailsJobWithoutProviderCall(t *testing.T) {
	jobs := newMemJobStore()
	provider := &fakeProvider{}
	res := &fakeResolver{err: &model.ResolutionError{URL: "https://example.com/broken", Err: errors.New("connection refused")}}
	o := newTestOrchestrator(jobs, newMemArticleStore(), provider, res)

	job, err := o.Submit(t.Context(), model.ContentRef{URL: "https://example.com/broken"}, []model.AnalysisKind{model.KindBias}, model.ModeSync)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != model.StatusFailed {
		t.Fatalf("Status = %s, want failed", job.Status)
	}
	if job.Error == nil || job.Error.Message == "" {
		t.Error("failed job must carry the resolution error cause")
	}
	if job.Result != nil {
		t.Error("failed job must not carry a result")
	}
	if got := provider.calls.Load(); got != 0 {
		t.Errorf("provider calls = %d, want 0 when resolution fails", got)
	}
}

func TestSubmit_URLContentIsResolvedBeforeAnalysis(t *testing.T) {
	jobs := newMemJobStore()
	provider := &fakeProvider{}
	res := &fakeResolver{text: "resolved article body text"}
	o := newTestOrchestrator(jobs, newMemArticleStore(), provider, res)

	job, err := o.Submit(t.Context(), model.ContentRef{URL: "https://example.com/story"}, []model.AnalysisKind{model.KindSummary}, model.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.StatusCompleted {
		t.Fatalf("Status = %s, want completed", job.Status)
	}
	if res.calls.Load() != 1 {
		t.Errorf("resolver calls = %d, want 1", res.calls.Load())
	}
}

func TestSubmit_ProviderTimeoutFailsWithTimeoutCause(t *testing.T) {
	jobs := newMemJobStore()
	provider := &fakeProvider{block: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	o := New(jobs, newMemArticleStore(), provider, &fakeResolver{}, 30*time.Millisecond, discardLogger())
	o.poll = 5 * time.Millisecond

	job, err := o.Submit(t.Context(), textRef, []model.AnalysisKind{model.KindBias}, model.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.StatusFailed {
		t.Fatalf("Status = %s, want failed", job.Status)
	}
	if job.Error == nil || !job.Error.Retriable {
		t.Errorf("Error = %+v, want retriable timeout", job.Error)
	}
}

func TestSubmit_ProviderErrorCapturedVerbatim(t *testing.T) {
	jobs := newMemJobStore()
	provider := &fakeProvider{err: &model.ProviderError{Err: errors.New("all requested kinds failed"), Retriable: true}}
	o := newTestOrchestrator(jobs, newMemArticleStore(), provider, &fakeResolver{})

	job, err := o.Submit(t.Context(), textRef, []model.AnalysisKind{model.KindBias}, model.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.StatusFailed {
		t.Fatalf("Status = %s, want failed", job.Status)
	}
	if job.Error == nil || !job.Error.Retriable {
		t.Errorf("Error = %+v, want provider retriable flag preserved", job.Error)
	}
}

func TestSubmit_Validation(t *testing.T) {
	o := newTestOrchestrator(newMemJobStore(), newMemArticleStore(), &fakeProvider{}, &fakeResolver{})

	tests := []struct {
		name  string
		ref   model.ContentRef
		kinds []model.AnalysisKind
	}{
		{"neither text nor url", model.ContentRef{}, []model.AnalysisKind{model.KindBias}},
		{"both text and url", model.ContentRef{Text: "t", URL: "https://a.example"}, []model.AnalysisKind{model.KindBias}},
		{"empty kinds", textRef, nil},
		{"unknown kind", textRef, []model.AnalysisKind{"vibes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Submit(t.Context(), tt.ref, tt.kinds, model.ModeSync)
			var valErr *model.ValidationError
			if !errors.As(err, &valErr) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestGet_Unknown(t *testing.T) {
	o := newTestOrchestrator(newMemJobStore(), newMemArticleStore(), &fakeProvider{}, &fakeResolver{})
	if _, err := o.Get(t.Context(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAnalyzeArticle_LinksAndShares(t *testing.T) {
	jobs := newMemJobStore()
	articles := newMemArticleStore()
	provider := &fakeProvider{}
	o := newTestOrchestrator(jobs, articles, provider, &fakeResolver{})

	article := &model.CollectedArticle{
		ID:    "a1",
		URL:   "https://example.com/story",
		Body:  "stored article body with enough text to analyze",
		Title: "Story",
	}
	if _, err := articles.CreateArticleIfAbsent(t.Context(), article); err != nil {
		t.Fatal(err)
	}

	kinds := []model.AnalysisKind{model.KindSummary}
	first, err := o.AnalyzeArticle(t.Context(), "a1", kinds, model.ModeSync)
	if err != nil {
		t.Fatalf("AnalyzeArticle: %v", err)
	}
	if first.Status != model.StatusCompleted {
		t.Fatalf("Status = %s, want completed", first.Status)
	}

	got, err := articles.GetArticle(t.Context(), "a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.AnalysisJobID != first.ID {
		t.Errorf("AnalysisJobID = %q, want %q", got.AnalysisJobID, first.ID)
	}

	// A second request for the same article shares the finished job.
	second, err := o.AnalyzeArticle(t.Context(), "a1", kinds, model.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("second.ID = %s, want shared job %s", second.ID, first.ID)
	}
	if provider.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls.Load())
	}
}

func TestAnalyzeArticle_UnknownArticle(t *testing.T) {
	o := newTestOrchestrator(newMemJobStore(), newMemArticleStore(), &fakeProvider{}, &fakeResolver{})
	_, err := o.AnalyzeArticle(t.Context(), "ghost", []model.AnalysisKind{model.KindBias}, model.ModeSync)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmit_FailedJobAllowsResubmission(t *testing.T) {
	jobs := newMemJobStore()
	provider := &fakeProvider{err: &model.ProviderError{Err: errors.New("boom")}}
	o := newTestOrchestrator(jobs, newMemArticleStore(), provider, &fakeResolver{})

	first, err := o.Submit(t.Context(), textRef, []model.AnalysisKind{model.KindBias}, model.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != model.StatusFailed {
		t.Fatalf("setup: Status = %s", first.Status)
	}

	provider.err = nil
	second, err := o.Submit(t.Context(), textRef, []model.AnalysisKind{model.KindBias}, model.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == first.ID {
		t.Error("re-analysis after failure must create a new job, not mutate the terminal one")
	}
	if second.Status != model.StatusCompleted {
		t.Errorf("Status = %s, want completed", second.Status)
	}

	// The failed job is untouched.
	old, err := o.Get(t.Context(), first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != model.StatusFailed {
		t.Errorf("first job Status = %s, terminal status must not change", old.Status)
	}
}

// ctxJobStore refuses reads and writes once the caller's context is
// cancelled, matching how database/sql behaves against the SQLite store.
type ctxJobStore struct{ *memJobStore }

func (s *ctxJobStore) UpdateStatus(ctx context.Context, id string, status model.JobStatus, result *model.AnalysisResult, jobErr *model.JobError) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.memJobStore.UpdateStatus(ctx, id, status, result, jobErr)
}

func (s *ctxJobStore) GetJob(ctx context.Context, id string) (*model.AnalysisJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.memJobStore.GetJob(ctx, id)
}

func TestSubmit_SyncCallerCancellationDoesNotStrandJob(t *testing.T) {
	jobs := &ctxJobStore{newMemJobStore()}
	release := make(chan struct{})
	provider := &fakeProvider{block: func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	o := newTestOrchestrator(jobs, newMemArticleStore(), provider, &fakeResolver{})

	ctx, cancel := context.WithCancel(context.Background())
	var submitted *model.AnalysisJob
	done := make(chan struct{})
	go func() {
		defer close(done)
		submitted, _ = o.Submit(ctx, textRef, []model.AnalysisKind{model.KindBias}, model.ModeSync)
	}()

	// Cancel the caller while the provider call is in flight, then let the
	// provider finish.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after the provider finished")
	}

	// The job must still reach terminal status: a row stuck at processing
	// would pin every later submission of this content to a dead job.
	if submitted == nil || !submitted.Status.Terminal() {
		t.Fatalf("job = %+v, want terminal status despite caller cancellation", submitted)
	}
	if submitted.Status != model.StatusCompleted {
		t.Fatalf("Status = %s, want completed", submitted.Status)
	}

	second, err := o.Submit(t.Context(), textRef, []model.AnalysisKind{model.KindBias}, model.ModeSync)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != submitted.ID {
		t.Errorf("second.ID = %s, want coalesced %s", second.ID, submitted.ID)
	}
	if second.Status != model.StatusCompleted {
		t.Errorf("Status = %s, want completed from cache", second.Status)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestSubmit_AsyncCoalescedCallerGetsInFlightJob(t *testing.T) {
	jobs := newMemJobStore()
	provider := &fakeProvider{delay: 100 * time.Millisecond}
	o := newTestOrchestrator(jobs, newMemArticleStore(), provider, &fakeResolver{})

	first, err := o.Submit(t.Context(), textRef, []model.AnalysisKind{model.KindBias}, model.ModeAsync)
	if err != nil {
		t.Fatal(err)
	}

	second, err := o.Submit(t.Context(), textRef, []model.AnalysisKind{model.KindBias}, model.ModeAsync)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("second async submit got job %s, want coalesced %s", second.ID, first.ID)
	}
	if second.Status.Terminal() {
		t.Errorf("coalesced in-flight job reported terminal status %s", second.Status)
	}

	// Drain: wait until the background execution finishes.
	deadline := time.After(2 * time.Second)
	for {
		got, _ := o.Get(t.Context(), first.ID)
		if got != nil && got.Status.Terminal() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never reached terminal status")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := provider.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}
