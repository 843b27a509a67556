package genai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind is the typed classification of an upstream failure. The wrapper
// branches on kinds instead of matching provider message text.
type ErrorKind string

const (
	KindQuota          ErrorKind = "quota"
	KindRateLimited    ErrorKind = "rate_limited"
	KindTimeout        ErrorKind = "timeout"
	KindUnavailable    ErrorKind = "unavailable"
	KindInvalidContent ErrorKind = "invalid_content"
	KindOther          ErrorKind = "other"
)

// RotatesCredential reports whether this failure class should advance the
// credential pool before the next attempt.
func (k ErrorKind) RotatesCredential() bool {
	return k == KindQuota || k == KindRateLimited
}

// UpstreamError is a single failed upstream call.
type UpstreamError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

// KindOf extracts the error kind, defaulting to KindOther.
func KindOf(err error) ErrorKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindOther
}

// classifyStatus maps an HTTP response status to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusForbidden, status == http.StatusPaymentRequired:
		return KindQuota
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusServiceUnavailable, status == http.StatusBadGateway:
		return KindUnavailable
	default:
		return KindOther
	}
}

// classifyTransport maps a transport-level error to an error kind.
func classifyTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnavailable
}

// Category is the user-facing classification surfaced after all attempts are
// exhausted. Internal detail stays in logs.
type Category string

const (
	CategoryQuota   Category = "quota_exhausted"
	CategoryTimeout Category = "timeout"
	CategoryContent Category = "content"
	CategoryGeneric Category = "generic"
)

// Message returns the guidance shown to the user for this category.
func (c Category) Message() string {
	switch c {
	case CategoryQuota:
		return "The service is at capacity. Please try again later or contact support."
	case CategoryTimeout:
		return "The request took too long. Try reducing the number of questions."
	case CategoryContent:
		return "We could not build a quiz from that topic. Try broadening your input."
	default:
		return "Something went wrong. Please try again."
	}
}

// categoryFor maps the last failure kind to a user-facing category.
func categoryFor(kind ErrorKind) Category {
	switch kind {
	case KindQuota, KindRateLimited:
		return CategoryQuota
	case KindTimeout:
		return CategoryTimeout
	case KindInvalidContent:
		return CategoryContent
	default:
		return CategoryGeneric
	}
}

// GenerationError is raised after the retry budget is exhausted.
type GenerationError struct {
	Kind     ErrorKind
	Category Category
	Attempts int
	last     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts (%s): %v", e.Attempts, e.Kind, e.last)
}

func (e *GenerationError) Unwrap() error {
	return e.last
}
