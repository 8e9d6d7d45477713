package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// FailureCategory is the normalized class of a generation failure, surfaced
// to the conversation as a single system-authored message.
type FailureCategory string

const (
	CategoryTimeout   FailureCategory = "timeout"
	CategoryNetwork   FailureCategory = "network"
	CategoryAuth      FailureCategory = "auth"
	CategoryRateLimit FailureCategory = "rate-limit"
	CategoryUnknown   FailureCategory = "unknown"
)

// StatusError carries an upstream HTTP status so transport failures can be
// categorized without leaking provider-specific error shapes.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

// Categorize maps an error from the generation capability onto a
// FailureCategory. Cancellation is deliberately not a category: callers must
// check context.Canceled before reporting a failure.
func Categorize(err error) FailureCategory {
	if err == nil {
		return CategoryUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Status == 401 || statusErr.Status == 403:
			return CategoryAuth
		case statusErr.Status == 429:
			return CategoryRateLimit
		case statusErr.Status >= 500:
			return CategoryNetwork
		}
		return CategoryUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return CategoryNetwork
	}

	return CategoryUnknown
}
