package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrInvalidURL              = errors.New("invalid URL")
	ErrFetchFailed             = errors.New("fetch failed")
	ErrExtractionFailed        = errors.New("no extraction strategy succeeded")
	ErrMalformedStructuredData = errors.New("malformed structured data")
	ErrNotApplicable           = errors.New("strategy not applicable")
	ErrCrossDomain             = errors.New("URL outside seed host")
	ErrDuplicate               = errors.New("duplicate URL")
	ErrMaxDepth                = errors.New("max depth exceeded")
	ErrBudgetExhausted         = errors.New("page budget exhausted")
	ErrExcluded                = errors.New("URL excluded by path rules")
	ErrBlocked                 = errors.New("blocked by robots.txt")
	ErrEmptyResponse           = errors.New("empty response body")
	ErrScreenshotUnsupported   = errors.New("renderer cannot take screenshots")
)

// FetchError wraps errors that occur during fetching or rendering.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFetchFailed) match any FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// StrategyAttempt records why one extraction strategy did not produce a product.
type StrategyAttempt struct {
	Strategy string
	Err      error
}

// ExtractionError is returned when every strategy in the chain failed.
type ExtractionError struct {
	URL      string
	Attempts []StrategyAttempt
}

func (e *ExtractionError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return fmt.Sprintf("extraction failed for %s [%s]", e.URL, strings.Join(parts, "; "))
}

func (e *ExtractionError) Unwrap() error { return ErrExtractionFailed }

// StructuredDataError wraps a JSON-LD block that could not be decoded.
type StructuredDataError struct {
	URL   string
	Block int
	Err   error
}

func (e *StructuredDataError) Error() string {
	return fmt.Sprintf("structured data block %d on %s: %v", e.Block, e.URL, e.Err)
}

func (e *StructuredDataError) Unwrap() []error {
	return []error{ErrMalformedStructuredData, e.Err}
}

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors raised by a post-extraction middleware.
type PipelineError struct {
	Stage string
	URL   string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q for %s: %v", e.Stage, e.URL, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
