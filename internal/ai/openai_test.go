package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/critiquewire/critiquewire/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOpenAI serves canned structured-output responses keyed by schema name.
// Schema names listed in failing get an HTTP 500 instead.
type fakeOpenAI struct {
	t        *testing.T
	payloads map[string]string
	failing  map[string]bool
	calls    atomic.Int32
}

func (f *fakeOpenAI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)

		var req struct {
			ResponseFormat struct {
				JSONSchema struct {
					Name string `json:"name"`
				} `json:"json_schema"`
			} `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		name := req.ResponseFormat.JSONSchema.Name
		if f.failing[name] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		payload, ok := f.payloads[name]
		if !ok {
			f.t.Errorf("unexpected schema name %q", name)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": payload}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func newTestProvider(t *testing.T, fake *fakeOpenAI) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(srv.URL, "test-key", "gpt-4o-mini", srv.Client(), discardLogger())
}

const article = "Parliament passed the budget bill on Tuesday after a heated debate."

func TestAnalyze_BiasAndSentiment(t *testing.T) {
	fake := &fakeOpenAI{t: t, payloads: map[string]string{
		"bias_analysis":      `{"leaning":"center","score":0.1,"biased_phrases":[],"explanation":"mostly neutral"}`,
		"sentiment_analysis": `{"overall":"neutral","score":0.0,"confidence":0.9}`,
	}}
	p := newTestProvider(t, fake)

	result, err := p.Analyze(t.Context(), article, []model.AnalysisKind{model.KindBias, model.KindSentiment})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Bias == nil || result.Bias.Leaning != "center" {
		t.Errorf("Bias = %+v", result.Bias)
	}
	if result.Sentiment == nil || result.Sentiment.Overall != "neutral" {
		t.Errorf("Sentiment = %+v", result.Sentiment)
	}
	if len(result.FailedKinds) != 0 {
		t.Errorf("FailedKinds = %v, want none", result.FailedKinds)
	}
	if result.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", result.Model)
	}
	if result.Score <= 0 {
		t.Errorf("Score = %v, want > 0", result.Score)
	}
	if got := fake.calls.Load(); got != 2 {
		t.Errorf("llm calls = %d, want 2", got)
	}
}

func TestAnalyze_PartialFailureFlagsKindAbsent(t *testing.T) {
	fake := &fakeOpenAI{
		t: t,
		payloads: map[string]string{
			"bias_analysis": `{"leaning":"center","score":0.2,"biased_phrases":[],"explanation":"ok"}`,
		},
		failing: map[string]bool{"sentiment_analysis": true},
	}
	p := newTestProvider(t, fake)

	result, err := p.Analyze(t.Context(), article, []model.AnalysisKind{model.KindBias, model.KindSentiment})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Bias == nil {
		t.Error("bias should be present")
	}
	if result.Sentiment != nil {
		t.Error("failed kind must be absent, never fabricated")
	}
	if len(result.FailedKinds) != 1 || result.FailedKinds[0] != model.KindSentiment {
		t.Errorf("FailedKinds = %v, want [sentiment]", result.FailedKinds)
	}
}

func TestAnalyze_AllKindsFailedIsProviderError(t *testing.T) {
	fake := &fakeOpenAI{t: t, failing: map[string]bool{
		"bias_analysis":      true,
		"sentiment_analysis": true,
	}}
	p := newTestProvider(t, fake)

	_, err := p.Analyze(t.Context(), article, []model.AnalysisKind{model.KindBias, model.KindSentiment})
	var provErr *model.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if !provErr.Retriable {
		t.Error("whole-call failure should be flagged retriable")
	}
}

func TestAnalyze_FactCheckFollowsClaims(t *testing.T) {
	claims := `{"claims":[
		{"id":"c1","statement":"The bill passed on Tuesday.","importance":"high"},
		{"id":"c2","statement":"The debate lasted nine hours.","importance":"medium"}
	]}`
	fake := &fakeOpenAI{t: t, payloads: map[string]string{
		"claim_extraction":   claims,
		"fact_check_verdict": `{"claim_id":"ignored","verdict":"supported","confidence":0.8,"reasoning":"stated directly"}`,
	}}
	p := newTestProvider(t, fake)

	result, err := p.Analyze(t.Context(), article, []model.AnalysisKind{model.KindClaims, model.KindFactCheck})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.Claims) != 2 {
		t.Fatalf("Claims = %d, want 2", len(result.Claims))
	}
	if len(result.FactCheck) != 2 {
		t.Fatalf("FactCheck = %d, want 2", len(result.FactCheck))
	}
	// Verdicts are re-keyed to the extracted claim ids.
	if result.FactCheck[0].ClaimID != "c1" || result.FactCheck[1].ClaimID != "c2" {
		t.Errorf("verdict claim ids = %s, %s", result.FactCheck[0].ClaimID, result.FactCheck[1].ClaimID)
	}
	// 1 extraction + 2 verdicts.
	if got := fake.calls.Load(); got != 3 {
		t.Errorf("llm calls = %d, want 3", got)
	}
}

func TestAnalyze_FactCheckCapsClaims(t *testing.T) {
	var claimList []map[string]string
	for i := 1; i <= 8; i++ {
		claimList = append(claimList, map[string]string{
			"id":         fmt.Sprintf("c%d", i),
			"statement":  fmt.Sprintf("claim %d", i),
			"importance": "low",
		})
	}
	claimsPayload, _ := json.Marshal(map[string]any{"claims": claimList})

	fake := &fakeOpenAI{t: t, payloads: map[string]string{
		"claim_extraction":   string(claimsPayload),
		"fact_check_verdict": `{"claim_id":"x","verdict":"unverifiable","confidence":0.5,"reasoning":"n/a"}`,
	}}
	p := newTestProvider(t, fake)

	result, err := p.Analyze(t.Context(), article, []model.AnalysisKind{model.KindFactCheck})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.FactCheck) != maxFactCheckedClaims {
		t.Errorf("FactCheck = %d, want capped at %d", len(result.FactCheck), maxFactCheckedClaims)
	}
	// fact_check only: extracted claims feed verdicts but are not reported.
	if len(result.Claims) != 0 {
		t.Errorf("Claims = %d, want 0 when not requested", len(result.Claims))
	}
}

func TestAnalyze_EmptyContent(t *testing.T) {
	p := newTestProvider(t, &fakeOpenAI{t: t})
	if _, err := p.Analyze(t.Context(), "", []model.AnalysisKind{model.KindBias}); err == nil {
		t.Fatal("expected error for empty content")
	}
}
