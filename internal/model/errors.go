package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a job or article ID is unknown.
var ErrNotFound = errors.New("not found")

// ErrTerminalStatus is returned when a transition is attempted on a job
// that is already completed or failed.
var ErrTerminalStatus = errors.New("job already in terminal status")

// ValidationError rejects a malformed submission before any job is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + e.Reason
}

// ResolutionError means URL content could not be fetched or extracted.
// The job fails with this cause and no provider call is made.
type ResolutionError struct {
	URL string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %s: %v", e.URL, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ProviderError means the analysis call failed entirely or returned
// unusable output.
type ProviderError struct {
	Err       error
	Retriable bool
}

func (e *ProviderError) Error() string {
	return "analysis provider: " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
