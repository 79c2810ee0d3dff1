// Package resolver fetches article URLs and extracts readable body text for
// analysis. Resolution failures are reported as model.ResolutionError so the
// orchestrator can fail the job without a provider call.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/critiquewire/critiquewire/internal/model"
)

// Ensure ReadabilityResolver implements model.ContentResolver.
var _ model.ContentResolver = (*ReadabilityResolver)(nil)

const userAgent = "Mozilla/5.0 (compatible; CritiqueWire/1.0; +https://critiquewire.com)"

// Extracted text below this length is treated as a failed extraction
// (paywall interstitials, cookie walls, empty shells).
const minExtractedLength = 80

// ReadabilityResolver fetches a page over HTTP and runs readability
// extraction on it.
type ReadabilityResolver struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewReadabilityResolver creates a resolver with a per-request timeout.
func NewReadabilityResolver(httpClient *http.Client, timeout time.Duration, logger *slog.Logger) *ReadabilityResolver {
	return &ReadabilityResolver{
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}
}

// Resolve fetches rawURL and returns the extracted article text.
func (r *ReadabilityResolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || pageURL.Scheme == "" || pageURL.Host == "" {
		return "", &model.ResolutionError{URL: rawURL, Err: fmt.Errorf("invalid url")}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &model.ResolutionError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", &model.ResolutionError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &model.ResolutionError{
			URL: rawURL,
			Err: &model.HTTPError{StatusCode: resp.StatusCode},
		}
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return "", &model.ResolutionError{URL: rawURL, Err: fmt.Errorf("extract content: %w", err)}
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < minExtractedLength {
		return "", &model.ResolutionError{
			URL: rawURL,
			Err: fmt.Errorf("extracted only %d characters of text", len(text)),
		}
	}

	r.logger.Debug("resolved article content",
		"url", rawURL,
		"title", article.Title,
		"chars", len(text),
	)
	return text, nil
}
