// Package ai implements the analysis provider on top of the OpenAI
// chat-completions API using JSON-schema structured outputs, one call per
// requested analysis kind.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/critiquewire/critiquewire/internal/model"
)

// Ensure OpenAIProvider implements model.AnalysisProvider.
var _ model.AnalysisProvider = (*OpenAIProvider)(nil)

// Fact-check at most this many extracted claims per job.
const maxFactCheckedClaims = 5

// OpenAIProvider calls the OpenAI /v1/chat/completions endpoint, one request
// per analysis kind. Kinds run concurrently; a kind whose call fails is
// reported absent rather than failing the whole job, unless every kind fails.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIProvider creates a provider targeting the OpenAI API.
func NewOpenAIProvider(baseURL, apiKey, model string, httpClient *http.Client, logger *slog.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Analyze runs every requested kind against the LLM and assembles the
// per-kind result. Fact-checking runs after claim extraction since verdicts
// are keyed to extracted claims.
func (p *OpenAIProvider) Analyze(ctx context.Context, content string, kinds []model.AnalysisKind) (*model.AnalysisResult, error) {
	if content == "" {
		return nil, &model.ProviderError{Err: fmt.Errorf("empty content")}
	}
	if len(kinds) == 0 {
		return nil, &model.ProviderError{Err: fmt.Errorf("no analysis kinds requested")}
	}

	start := time.Now()
	result := &model.AnalysisResult{Model: p.model}

	requested := make(map[model.AnalysisKind]bool, len(kinds))
	for _, k := range kinds {
		requested[k] = true
	}
	// Fact-check verdicts are keyed to claims, so claim extraction runs
	// even when only fact_check was requested.
	needClaims := requested[model.KindClaims] || requested[model.KindFactCheck]

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []model.AnalysisKind
	)
	fail := func(kind model.AnalysisKind, err error) {
		p.logger.Warn("analysis kind failed", "kind", kind, "error", err)
		mu.Lock()
		failed = append(failed, kind)
		mu.Unlock()
	}

	if requested[model.KindBias] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out model.BiasAnalysis
			if err := p.complete(ctx, biasPrompt, biasSchema, "bias_analysis", content, &out); err != nil {
				fail(model.KindBias, err)
				return
			}
			mu.Lock()
			result.Bias = &out
			mu.Unlock()
		}()
	}

	if requested[model.KindSentiment] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out model.SentimentAnalysis
			if err := p.complete(ctx, sentimentPrompt, sentimentSchema, "sentiment_analysis", content, &out); err != nil {
				fail(model.KindSentiment, err)
				return
			}
			mu.Lock()
			result.Sentiment = &out
			mu.Unlock()
		}()
	}

	if requested[model.KindCredibility] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out model.CredibilityAssessment
			if err := p.complete(ctx, credibilityPrompt, credibilitySchema, "credibility_assessment", content, &out); err != nil {
				fail(model.KindCredibility, err)
				return
			}
			mu.Lock()
			result.Credibility = &out
			mu.Unlock()
		}()
	}

	if requested[model.KindSummary] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out model.Summary
			if err := p.complete(ctx, summaryPrompt, summarySchema, "executive_summary", content, &out); err != nil {
				fail(model.KindSummary, err)
				return
			}
			mu.Lock()
			result.Summary = &out
			mu.Unlock()
		}()
	}

	var claims []model.Claim
	if needClaims {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out struct {
				Claims []model.Claim `json:"claims"`
			}
			if err := p.complete(ctx, claimsPrompt, claimsSchema, "claim_extraction", content, &out); err != nil {
				if requested[model.KindClaims] {
					fail(model.KindClaims, err)
				}
				return
			}
			mu.Lock()
			claims = out.Claims
			if requested[model.KindClaims] {
				result.Claims = out.Claims
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if requested[model.KindFactCheck] {
		if len(claims) == 0 {
			failed = append(failed, model.KindFactCheck)
		} else {
			result.FactCheck = p.factCheck(ctx, content, claims, &failed, &mu)
		}
	}

	// A kind that was requested and produced nothing is failed; if no kind
	// produced anything the whole call is a provider failure.
	anyPresent := false
	for _, k := range kinds {
		if result.Has(k) {
			anyPresent = true
			break
		}
	}
	if !anyPresent {
		return nil, &model.ProviderError{
			Err:       fmt.Errorf("all %d requested analysis kinds failed", len(kinds)),
			Retriable: true,
		}
	}

	result.FailedKinds = failed
	result.Score = overallScore(result, kinds)
	result.Duration = time.Since(start)
	return result, nil
}

// factCheck runs verdict calls for the first maxFactCheckedClaims claims
// concurrently. Individual verdict failures drop that claim's verdict; if
// every verdict fails the fact_check kind is marked failed.
func (p *OpenAIProvider) factCheck(ctx context.Context, content string, claims []model.Claim, failed *[]model.AnalysisKind, mu *sync.Mutex) []model.FactCheckVerdict {
	if len(claims) > maxFactCheckedClaims {
		claims = claims[:maxFactCheckedClaims]
	}

	verdicts := make([]*model.FactCheckVerdict, len(claims))
	var wg sync.WaitGroup
	for i, claim := range claims {
		wg.Add(1)
		go func(i int, claim model.Claim) {
			defer wg.Done()
			input := fmt.Sprintf("Claim (id %s): %s\n\nArticle:\n%s", claim.ID, claim.Statement, content)
			var out model.FactCheckVerdict
			if err := p.complete(ctx, factCheckPrompt, factCheckSchema, "fact_check_verdict", input, &out); err != nil {
				p.logger.Warn("fact-check verdict failed", "claim_id", claim.ID, "error", err)
				return
			}
			out.ClaimID = claim.ID
			verdicts[i] = &out
		}(i, claim)
	}
	wg.Wait()

	var out []model.FactCheckVerdict
	for _, v := range verdicts {
		if v != nil {
			out = append(out, *v)
		}
	}
	if len(out) == 0 {
		mu.Lock()
		*failed = append(*failed, model.KindFactCheck)
		mu.Unlock()
	}
	return out
}

// chatRequest mirrors the OpenAI /v1/chat/completions request body.
type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    int            `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaSpec `json:"json_schema"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// chatResponse mirrors the relevant fields of the OpenAI response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// complete sends one structured-outputs completion and unmarshals the
// schema-conforming JSON response into out.
func (p *OpenAIProvider) complete(ctx context.Context, systemPrompt string, schema map[string]any, schemaName, input string, out any) error {
	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: input},
		},
		Temperature: 0,
		MaxTokens:   2048,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaSpec{
				Name:   schemaName,
				Schema: schema,
			},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal llm request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm returned HTTP %d: %s", resp.StatusCode, string(respBytes))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBytes, &chatResp); err != nil {
		return fmt.Errorf("parse llm response: %w", err)
	}
	if chatResp.Error != nil {
		return fmt.Errorf("llm error (%s): %s", chatResp.Error.Type, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return fmt.Errorf("llm returned no choices")
	}

	// Structured outputs guarantees schema-conforming JSON, no fence stripping needed.
	if err := json.Unmarshal([]byte(chatResp.Choices[0].Message.Content), out); err != nil {
		return fmt.Errorf("unmarshal structured output: %w", err)
	}
	return nil
}
