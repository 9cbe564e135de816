package delivery

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for delivery failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions instead of string matching.
var (
	// ErrAuth indicates authentication failure (bad credentials, expired key).
	ErrAuth = errors.New("authentication failed")

	// ErrAccessDenied indicates authorization failure (valid creds, no permission).
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound indicates the target resource or endpoint does not exist.
	ErrNotFound = errors.New("not found")

	// ErrThrottled indicates upstream rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")

	// ErrTimeout indicates the delivery round trip timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")
)

// Error wraps an underlying delivery failure with classification.
// The original error stays in the chain for errors.As inspection.
type Error struct {
	// Kind is the sentinel for classification, or nil when unclassified.
	Kind error
	// Backend names the backend that failed (smtp, api, mediastore).
	Backend string
	// Op is the operation that failed (send, upload, link).
	Op string
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Backend, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

// wrapErr classifies and wraps a delivery error. Returns nil if err is nil.
func wrapErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: classify(err), Backend: backend, Op: op, Err: err}
}

// classify determines the sentinel for an upstream failure based on error
// type and message patterns shared by SMTP servers, HTTP APIs, and S3.
func classify(err error) error {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 401:
			return ErrAuth
		case statusErr.Code == 403:
			return ErrAccessDenied
		case statusErr.Code == 404:
			return ErrNotFound
		case statusErr.Code == 429:
			return ErrThrottled
		}
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "invalidaccesskeyid", "signaturedoesnotmatch",
		"expiredtoken", "nocredentialproviders", "credentials", "401", "unauthorized",
		"535", "authentication"):
		return ErrAuth
	case containsAny(msg, "accessdenied", "forbidden", "403"):
		return ErrAccessDenied
	case containsAny(msg, "nosuchbucket", "nosuchkey", "not found", "404"):
		return ErrNotFound
	case containsAny(msg, "slowdown", "rate exceeded", "throttl", "429", "toomanyrequests"):
		return ErrThrottled
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(msg, "connection refused", "no route to host",
		"network unreachable", "dial tcp", "no such host", "i/o timeout", "broken pipe"):
		return ErrNetwork
	default:
		return nil
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// StatusError is returned for non-2xx HTTP responses from the email API.
// Detail carries a bounded slice of the upstream body for diagnostics;
// it is logged, never surfaced to the uploading client.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}
