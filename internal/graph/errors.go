// Package graph provides a single-attempt HTTP adapter for the Microsoft
// Graph drive API. Every failure is converted into a *GraphError whose Kind
// tells callers how to react; retrying is left to internal/retry.
package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, graph.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrGone         = errors.New("graph: resource gone")
	ErrThrottled    = errors.New("graph: throttled")
	ErrLocked       = errors.New("graph: resource locked")
	ErrServerError  = errors.New("graph: server error")
	ErrNetwork      = errors.New("graph: network error")
)

// Kind is the closed set of failure categories the sync engine reacts to.
type Kind int

const (
	// KindFatal covers every failure not listed below.
	KindFatal Kind = iota
	// KindTransient is a network failure, throttling, or a server-side 5xx.
	KindTransient
	// KindConflict is a name collision on create (HTTP 409).
	KindConflict
	// KindLocked is a file held open for editing elsewhere (HTTP 423).
	KindLocked
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindConflict:
		return "conflict"
	case KindLocked:
		return "locked"
	default:
		return "fatal"
	}
}

// GraphError wraps a sentinel error with HTTP status code, request ID,
// and the API error message body for debugging. StatusCode is zero when no
// response was received; Cause then holds the transport error.
type GraphError struct {
	StatusCode int
	RequestID  string
	Message    string
	RetryAfter string // raw Retry-After header, if any
	Kind       Kind
	Err        error // sentinel, for errors.Is()
	Cause      error // underlying transport error, network failures only
}

func (e *GraphError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("graph: network error: %v", e.Cause)
	}

	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *GraphError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}

	return errs
}

// HTTPStatus returns the response status, or zero for network failures.
func (e *GraphError) HTTPStatus() int {
	return e.StatusCode
}

// RetryAfterHeader returns the raw Retry-After header of the response.
func (e *GraphError) RetryAfterHeader() string {
	return e.RetryAfter
}

// Transient reports whether the failure is a network or server-side fault.
func (e *GraphError) Transient() bool {
	return e.Kind == KindTransient
}

// KindOf returns the Kind of err, or KindFatal when err is not a GraphError.
func KindOf(err error) Kind {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Kind
	}

	return KindFatal
}

// newStatusError builds the GraphError for a non-2xx response.
func newStatusError(resp *http.Response, body []byte) *GraphError {
	return &GraphError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    string(body),
		RetryAfter: resp.Header.Get("Retry-After"),
		Kind:       classifyKind(resp.StatusCode),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// newNetworkError builds the GraphError for a request that got no response.
func newNetworkError(cause error) *GraphError {
	return &GraphError{
		Kind:  KindTransient,
		Err:   ErrNetwork,
		Cause: cause,
	}
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// classifyKind maps an HTTP status code to the engine-facing Kind.
func classifyKind(code int) Kind {
	switch code {
	case http.StatusConflict:
		return KindConflict
	case http.StatusLocked:
		return KindLocked
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return KindTransient
	default:
		// 509 Bandwidth Limit Exceeded (SharePoint) is grouped with 5xx.
		if code >= http.StatusInternalServerError {
			return KindTransient
		}

		return KindFatal
	}
}
