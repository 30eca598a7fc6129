// Package retry classifies orchestrator errors as retryable or fatal and
// computes the backoff schedule for per-segment retries.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DefaultBaseDelay, DefaultMultiplier, DefaultMaxDelay and DefaultMaxAttempts
// are the backoff schedule's defaults.
const (
	DefaultBaseDelay   = 2 * time.Second
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 30 * time.Second
	DefaultMaxAttempts = 3
)

// Policy computes whether an error should be retried and how long to wait
// before the next attempt.
type Policy struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// Default returns the default backoff schedule: 2s base, x2
// multiplier, 30s cap, 3 attempts.
func Default() Policy {
	return Policy{
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
		MaxDelay:    DefaultMaxDelay,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Delay returns the backoff delay before retry attempt n (1-indexed):
// min(baseDelay * multiplier^(n-1), maxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether attempt (the attempt number that just
// failed, 1-indexed) should be retried given err.
func (p Policy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return IsRetryable(err)
}

// retryableStatusCodes mirrors internal/httpclient's isRetryableStatus:
// rate limiting and upstream unavailability are transient, everything else
// is treated as fatal.
var retryableStatusCodes = map[int]bool{
	429: true,
	502: true,
	503: true,
	504: true,
}

// StatusError is implemented by provider errors that carry an HTTP status
// code, so ShouldRetry/IsRetryable can classify them without a type
// assertion on a concrete provider package.
type StatusError interface {
	error
	StatusCode() int
}

// IsRetryable classifies err as transient (network reset/timeout/DNS
// failure, provider rate limiting, 502/503/504-equivalent status codes, or
// an explicit "timeout" substring) versus fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return retryableStatusCodes[statusErr.StatusCode()]
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "504"):
		return true
	}
	return false
}
