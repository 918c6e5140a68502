package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized failure taxonomy
type ErrorCategory string

const (
	// ErrorTimeout indicates the upstream took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the upstream returned invalid/malformed data
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorProviderOutage indicates the upstream is unavailable
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorNotFound indicates the requested record doesn't exist
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorCanceled indicates the caller abandoned the request
	ErrorCanceled ErrorCategory = "canceled"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

func retryableCategory(category ErrorCategory) bool {
	return category == ErrorTimeout ||
		category == ErrorProviderOutage ||
		category == ErrorRateLimited
}

// FetchFailure is the failure of one item's detail retrieval. It is never
// fatal to a run.
type FetchFailure struct {
	Locator    string
	Category   ErrorCategory
	Message    string
	Underlying error
	Retryable  bool
}

// Error implements the error interface
func (e *FetchFailure) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("fetch %s [%s]: %s: %v", e.Locator, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("fetch %s [%s]: %s", e.Locator, e.Category, e.Message)
}

// Unwrap supports error unwrapping
func (e *FetchFailure) Unwrap() error {
	return e.Underlying
}

// NewFetchFailure creates a normalized fetch failure.
func NewFetchFailure(category ErrorCategory, locator, message string, underlying error) *FetchFailure {
	return &FetchFailure{
		Category:   category,
		Locator:    locator,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryableCategory(category),
	}
}

// AsFetchFailure normalizes any error returned by a Fetcher. Errors that are
// not already a *FetchFailure are categorized from the context state.
func AsFetchFailure(locator string, err error) *FetchFailure {
	if err == nil {
		return nil
	}
	var ff *FetchFailure
	if errors.As(err, &ff) {
		return ff
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewFetchFailure(ErrorTimeout, locator, "deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewFetchFailure(ErrorCanceled, locator, "request canceled", err)
	default:
		return NewFetchFailure(ErrorInternal, locator, "unexpected error", err)
	}
}

// ListingError means the reference list could not be obtained. It aborts a
// refresh before any fetch is dispatched.
type ListingError struct {
	Category   string
	Kind       ErrorCategory
	Message    string
	Underlying error
}

func (e *ListingError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("list %s [%s]: %s: %v", e.Category, e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("list %s [%s]: %s", e.Category, e.Kind, e.Message)
}

func (e *ListingError) Unwrap() error {
	return e.Underlying
}

// NewListingError creates a normalized listing failure.
func NewListingError(kind ErrorCategory, category, message string, underlying error) *ListingError {
	return &ListingError{Kind: kind, Category: category, Message: message, Underlying: underlying}
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var ff *FetchFailure
	if errors.As(err, &ff) {
		return ff.Retryable
	}
	var le *ListingError
	if errors.As(err, &le) {
		return retryableCategory(le.Kind)
	}
	return false
}

// GetCategory extracts the error category from an error
func GetCategory(err error) ErrorCategory {
	var ff *FetchFailure
	if errors.As(err, &ff) {
		return ff.Category
	}
	var le *ListingError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ErrorInternal
}

// IsListingError reports whether err carries a *ListingError.
func IsListingError(err error) bool {
	var le *ListingError
	return errors.As(err, &le)
}
