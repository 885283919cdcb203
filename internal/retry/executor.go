package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// StatusCoder is implemented by errors that carry an HTTP response status.
// A zero status means no response was received.
type StatusCoder interface {
	HTTPStatus() int
}

// RetryAfterCarrier is implemented by errors that carry the raw Retry-After
// header of the failed response.
type RetryAfterCarrier interface {
	RetryAfterHeader() string
}

// TransientCarrier is implemented by transport errors that already know they
// represent a transient network failure.
type TransientCarrier interface {
	Transient() bool
}

// Executor runs operations under a Policy.
type Executor struct {
	policy Policy
	logger *slog.Logger

	// sleepFunc waits between attempts. Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error

	// nowFunc is used to resolve HTTP-date Retry-After values.
	nowFunc func() time.Time
}

// New creates an Executor for the given policy.
func New(policy Policy, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	return &Executor{
		policy:    policy,
		logger:    logger,
		sleepFunc: Sleep,
		nowFunc:   time.Now,
	}
}

// WithSleep returns a copy of the executor that waits with fn. Used by callers
// that share a fake clock with the executor in tests.
func (e *Executor) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Executor {
	cp := *e
	cp.sleepFunc = fn

	return &cp
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. The error of the last attempt is returned as is.
func (e *Executor) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var attempt int

	for {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				e.logger.Info("operation succeeded after retry",
					slog.String("policy", e.policy.Name),
					slog.String("op", name),
					slog.Int("attempts", attempt+1),
				)
			}

			return nil
		}

		if ctx.Err() != nil {
			return err
		}

		if !e.Retryable(err) {
			return err
		}

		if attempt >= e.policy.MaxRetries {
			e.logger.Error("operation failed after retries",
				slog.String("policy", e.policy.Name),
				slog.String("op", name),
				slog.Int("attempts", attempt+1),
				slog.String("error", err.Error()),
			)

			return err
		}

		delay := e.Delay(err, attempt)
		e.logger.Warn("retrying operation",
			slog.String("policy", e.policy.Name),
			slog.String("op", name),
			slog.Int("attempt", attempt+1),
			slog.Int("status", statusOf(err)),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		if sleepErr := e.sleepFunc(ctx, delay); sleepErr != nil {
			return err
		}

		attempt++
	}
}

// Retryable reports whether err should be retried under the policy.
func (e *Executor) Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if code := statusOf(err); code != 0 {
		return e.policy.Retryable.Contains(code)
	}

	return IsTransientNetwork(err)
}

// Delay returns the wait before the next attempt after err failed attempt
// number attempt (0-based). Retry-After wins over exponential backoff.
func (e *Executor) Delay(err error, attempt int) time.Duration {
	var rac RetryAfterCarrier
	if errors.As(err, &rac) {
		if d, ok := ParseRetryAfter(rac.RetryAfterHeader(), e.nowFunc()); ok {
			return d
		}
	}

	return e.Backoff(attempt)
}

// Backoff computes BaseBackoff * 2^attempt, capped at MaxBackoff when set.
func (e *Executor) Backoff(attempt int) time.Duration {
	backoff := float64(e.policy.BaseBackoff) * math.Pow(2, float64(attempt))
	if e.policy.MaxBackoff > 0 && backoff > float64(e.policy.MaxBackoff) {
		return e.policy.MaxBackoff
	}

	if backoff > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(backoff)
}

// ParseRetryAfter interprets a Retry-After header value, either a number of
// seconds or an HTTP-date. Zero, negative, past, and unparseable values
// report ok=false so the caller falls back to its own backoff.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, false
		}

		return time.Duration(seconds) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}

	d := max(at.Sub(now), 0)
	if d <= 0 {
		return 0, false
	}

	return d, true
}

// IsTransientNetwork reports whether err is a network-level failure that is
// worth retrying: timeouts, resets, refused connections, and truncated reads.
func IsTransientNetwork(err error) bool {
	var tc TransientCarrier
	if errors.As(err, &tc) {
		return tc.Transient()
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}

func statusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}

	return 0
}

// Sleep waits for d or until ctx is canceled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
