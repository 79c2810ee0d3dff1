package model

import (
	"context"
	"time"
)

// AnalysisKind identifies one kind of analysis the provider can produce.
type AnalysisKind string

const (
	KindBias        AnalysisKind = "bias"
	KindSentiment   AnalysisKind = "sentiment"
	KindClaims      AnalysisKind = "claims"
	KindFactCheck   AnalysisKind = "fact_check"
	KindCredibility AnalysisKind = "credibility"
	KindSummary     AnalysisKind = "summary"
)

// AllKinds lists every supported analysis kind in a stable order.
func AllKinds() []AnalysisKind {
	return []AnalysisKind{
		KindBias, KindSentiment, KindClaims,
		KindFactCheck, KindCredibility, KindSummary,
	}
}

// ValidKind reports whether k is a supported analysis kind.
func ValidKind(k AnalysisKind) bool {
	switch k {
	case KindBias, KindSentiment, KindClaims, KindFactCheck, KindCredibility, KindSummary:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of an AnalysisJob.
// Transitions only move forward: pending → processing → completed|failed.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExecutionMode selects whether Submit blocks until the job is terminal.
type ExecutionMode string

const (
	ModeSync  ExecutionMode = "sync"
	ModeAsync ExecutionMode = "async"
)

// ContentRef points at the content to analyze: raw text or a source URL.
// Exactly one field must be set; a URL is resolved to text before analysis.
type ContentRef struct {
	Text string
	URL  string
}

// AnalysisJob is one unit of analysis work, from submission to terminal status.
type AnalysisJob struct {
	ID          string
	Fingerprint string
	Content     ContentRef
	Kinds       []AnalysisKind
	Status      JobStatus
	Result      *AnalysisResult // set only when Status == completed
	Error       *JobError       // set only when Status == failed
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JobError records why a job failed and whether resubmission might succeed.
type JobError struct {
	Message   string
	Retriable bool
}

// AnalysisResult holds per-kind outputs plus call metadata. A requested kind
// that the provider could not produce is absent from its field and listed in
// FailedKinds; it is never fabricated.
type AnalysisResult struct {
	Bias        *BiasAnalysis
	Sentiment   *SentimentAnalysis
	Claims      []Claim
	FactCheck   []FactCheckVerdict
	Credibility *CredibilityAssessment
	Summary     *Summary

	FailedKinds []AnalysisKind
	Score       float64 // weighted aggregate across present kinds, 0..1
	Duration    time.Duration
	Model       string
}

// Has reports whether the result carries output for the given kind.
func (r *AnalysisResult) Has(kind AnalysisKind) bool {
	if r == nil {
		return false
	}
	switch kind {
	case KindBias:
		return r.Bias != nil
	case KindSentiment:
		return r.Sentiment != nil
	case KindClaims:
		return len(r.Claims) > 0
	case KindFactCheck:
		return len(r.FactCheck) > 0
	case KindCredibility:
		return r.Credibility != nil
	case KindSummary:
		return r.Summary != nil
	}
	return false
}

// BiasAnalysis rates political/framing bias of the article.
type BiasAnalysis struct {
	Leaning       string   `json:"leaning"` // left | center-left | center | center-right | right
	Score         float64  `json:"score"`   // 0 (neutral) .. 1 (heavily biased)
	BiasedPhrases []string `json:"biased_phrases"`
	Explanation   string   `json:"explanation"`
}

// SentimentAnalysis rates the overall tone of the article.
type SentimentAnalysis struct {
	Overall    string  `json:"overall"` // positive | neutral | negative | mixed
	Score      float64 `json:"score"`   // -1 .. 1
	Confidence float64 `json:"confidence"`
}

// Claim is a checkable factual statement extracted from the article.
type Claim struct {
	ID         string `json:"id"`
	Statement  string `json:"statement"`
	Importance string `json:"importance"` // high | medium | low
}

// FactCheckVerdict is the provider's verdict on one extracted claim.
type FactCheckVerdict struct {
	ClaimID    string  `json:"claim_id"`
	Verdict    string  `json:"verdict"` // supported | disputed | unverifiable
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// CredibilityAssessment rates the trustworthiness of the article's source.
type CredibilityAssessment struct {
	Rating      string   `json:"rating"` // high | medium | low
	Score       float64  `json:"score"`  // 0 .. 1
	RedFlags    []string `json:"red_flags"`
	Explanation string   `json:"explanation"`
}

// Summary is an executive summary of the article.
type Summary struct {
	Headline  string   `json:"headline"`
	Text      string   `json:"text"`
	KeyPoints []string `json:"key_points"`
}

// AnalysisProvider performs the requested kinds of analysis on resolved text.
// Kinds the provider cannot produce are reported inside the result; a nil
// result with an error means the whole call failed.
type AnalysisProvider interface {
	Analyze(ctx context.Context, content string, kinds []AnalysisKind) (*AnalysisResult, error)
}

// ContentResolver fetches a URL and extracts readable article text.
type ContentResolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// JobStore persists analysis jobs. It is the single source of truth for job
// status; every status read goes through it.
type JobStore interface {
	// CreateJobIfAbsent atomically creates job unless a non-failed job with
	// the same fingerprint already exists, in which case that job is
	// returned with created == false.
	CreateJobIfAbsent(ctx context.Context, job *AnalysisJob) (stored *AnalysisJob, created bool, err error)
	// UpdateStatus transitions a job. Result and jobErr are written for
	// terminal statuses. Transitioning a job that is already terminal
	// returns ErrTerminalStatus.
	UpdateStatus(ctx context.Context, id string, status JobStatus, result *AnalysisResult, jobErr *JobError) error
	GetJob(ctx context.Context, id string) (*AnalysisJob, error)
	FindJobByFingerprint(ctx context.Context, fingerprint string) (*AnalysisJob, error)
}
