package upstream

import (
	"errors"
	"fmt"

	"timekeep/pkg/platform/sentinel"
)

// Category is the normalized failure taxonomy for upstream services.
type Category string

const (
	CategoryTimeout        Category = "timeout"
	CategoryBadData        Category = "bad_data"
	CategoryAuthentication Category = "authentication"
	CategoryOutage         Category = "outage"
	CategoryNotFound       Category = "not_found"
	CategoryRateLimited    Category = "rate_limited"
	CategoryInternal       Category = "internal"
)

// Error wraps an upstream failure with its category.
type Error struct {
	Category   Category
	Service    string
	StatusCode int
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("upstream %s [%s]: %s: %v", e.Service, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("upstream %s [%s]: %s", e.Service, e.Category, e.Message)
}

// Unwrap exposes the cause and, for a missing record, sentinel.ErrNotFound so
// resilience pipelines can pass it through as a business outcome.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Underlying != nil {
		errs = append(errs, e.Underlying)
	}
	if e.Category == CategoryNotFound {
		errs = append(errs, sentinel.ErrNotFound)
	}
	return errs
}

// Retryable reports whether another attempt could succeed.
func (e *Error) Retryable() bool {
	switch e.Category {
	case CategoryTimeout, CategoryOutage, CategoryRateLimited:
		return true
	}
	return false
}

// IsRetryable is the retry classifier for upstream stacks. Errors that did not
// come from this package are treated as transient.
func IsRetryable(err error) bool {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	return true
}

func categoryFor(status int) Category {
	switch {
	case status == 404:
		return CategoryNotFound
	case status == 401 || status == 403:
		return CategoryAuthentication
	case status == 408 || status == 504:
		return CategoryTimeout
	case status == 429:
		return CategoryRateLimited
	case status >= 500:
		return CategoryOutage
	case status >= 400:
		return CategoryBadData
	}
	return CategoryInternal
}
