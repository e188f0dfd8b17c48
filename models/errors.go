package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation  = errors.New("invalid query")
	ErrNoResults   = errors.New("no results")
	ErrPersistence = errors.New("history store unavailable")
	ErrNarrative   = errors.New("insight generation failed")
	ErrProvider    = errors.New("provider unavailable")
)

// ProviderError reports a fault isolated to one platform.
type ProviderError struct {
	Platform string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Platform, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrProvider, e.Err} }

type FailureKind string

const (
	FailureValidation  FailureKind = "validation"
	FailureNoResults   FailureKind = "no_results"
	FailurePersistence FailureKind = "persistence"
	FailureCanceled    FailureKind = "canceled"
)

// SearchError is the failed outcome of a search. Retryable is true when the
// failure is a temporary service problem rather than an absence of matches.
type SearchError struct {
	Kind        FailureKind
	State       SearchState
	Retryable   bool
	Unavailable []string
	Err         error
}

func (e *SearchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "search failed (%s in %s)", e.Kind, e.State)
	if len(e.Unavailable) > 0 {
		fmt.Fprintf(&b, " unavailable=[%s]", strings.Join(e.Unavailable, ","))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *SearchError) Unwrap() error { return e.Err }
