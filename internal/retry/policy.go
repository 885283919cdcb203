// Package retry runs remote operations with bounded retries, exponential
// backoff, and Retry-After awareness. Failures are classified through a small
// method set (HTTPStatus, RetryAfterHeader, Transient) rather than by
// inspecting error strings.
package retry

import (
	"net/http"
	"time"
)

// Cloudflare origin errors returned by some download mirrors.
const (
	statusWebServerDown      = 520
	statusWebServerRefused   = 521
	statusConnectionTimedOut = 522
	statusOriginUnreachable  = 523
	statusTimeoutOccurred    = 524
)

// StatusSet is the set of HTTP status codes a policy retries.
type StatusSet map[int]bool

// Contains reports whether code is in the set.
func (s StatusSet) Contains(code int) bool {
	return s[code]
}

// DownloadStatuses are retried for plain content downloads.
var DownloadStatuses = StatusSet{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
	statusWebServerDown:           true,
	statusWebServerRefused:        true,
	statusConnectionTimedOut:      true,
	statusOriginUnreachable:       true,
	statusTimeoutOccurred:         true,
}

// GraphStatuses are retried for Graph API calls, uploads included.
var GraphStatuses = StatusSet{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// PublishStatuses are retried for outbound publish/notification requests.
var PublishStatuses = StatusSet{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Default tuning.
const (
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 2 * time.Second
	DefaultMaxBackoff  = 60 * time.Second
)

// Policy configures one Executor. MaxRetries is the number of retries after
// the first attempt, so an operation runs at most MaxRetries+1 times.
// A zero MaxBackoff leaves exponential backoff uncapped.
type Policy struct {
	Name        string
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Retryable   StatusSet
}

// GraphPolicy returns the policy used for Graph API and upload calls.
func GraphPolicy(maxRetries int, base time.Duration) Policy {
	return Policy{
		Name:        "graph",
		MaxRetries:  maxRetries,
		BaseBackoff: base,
		MaxBackoff:  DefaultMaxBackoff,
		Retryable:   GraphStatuses,
	}
}

// DownloadPolicy returns the policy used for content downloads.
func DownloadPolicy(maxRetries int, base time.Duration) Policy {
	return Policy{
		Name:        "download",
		MaxRetries:  maxRetries,
		BaseBackoff: base,
		MaxBackoff:  DefaultMaxBackoff,
		Retryable:   DownloadStatuses,
	}
}

// PublishPolicy returns the policy used for outbound HTTP notifications.
func PublishPolicy(maxRetries int, base time.Duration) Policy {
	return Policy{
		Name:        "publish",
		MaxRetries:  maxRetries,
		BaseBackoff: base,
		MaxBackoff:  DefaultMaxBackoff,
		Retryable:   PublishStatuses,
	}
}
