package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FetchCause classifies a FetchError.
type FetchCause string

// Fetch failure causes.
const (
	CauseTimeout    FetchCause = "timeout"
	CauseHTTPStatus FetchCause = "http_status"
	CauseNetwork    FetchCause = "network"
	CauseCanceled   FetchCause = "canceled"
)

// FetchError reports a failed GET or HEAD.
type FetchError struct {
	URL        string
	Cause      FetchCause
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Cause == CauseHTTPStatus {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Cause, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError classifies err as a cancellation, a timeout or a network fault.
func NewFetchError(url string, err error) *FetchError {
	cause := CauseNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		cause = CauseCanceled
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		cause = CauseTimeout
	}
	return &FetchError{URL: url, Cause: cause, Err: err}
}

// NewStatusError reports a non-2xx response.
func NewStatusError(url string, status int) *FetchError {
	return &FetchError{URL: url, Cause: CauseHTTPStatus, StatusCode: status}
}

// ParseError reports markup that could not be interpreted.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractionError wraps the fetch or parse failure of a single article.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PersistenceError reports a store failure other than a uniqueness conflict.
type PersistenceError struct {
	Op  string
	URL string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrEmptyURL is returned when a record without a URL reaches a store.
var ErrEmptyURL = errors.New("record url is required")
