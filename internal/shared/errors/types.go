// Package errors provides classified error wrapping used throughout the
// orchestrator and RAG engine: transient/permanent/degraded classification
// for retry policy, a circuit breaker, and a closed set of domain error
// kinds for the context window and RAG subsystems.
package errors

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

// ErrorType classifies an error for retry/circuit-breaker policy.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeTransient
	ErrorTypePermanent
	ErrorTypeDegraded
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// classifiedError carries an explicit classification alongside a wrapped
// cause and a human message.
type classifiedError struct {
	kind     ErrorType
	err      error
	message  string
	fallback string // only used by DegradedError
}

func (e *classifiedError) Error() string {
	if e.message != "" {
		return e.message
	}
	if e.err != nil {
		return e.err.Error()
	}
	return e.kind.String() + " error"
}

func (e *classifiedError) Unwrap() error { return e.err }

// NewTransientError wraps err as a retryable error with a human message.
func NewTransientError(err error, message string) error {
	return &classifiedError{kind: ErrorTypeTransient, err: err, message: message}
}

// NewPermanentError wraps err as a non-retryable error with a human message.
func NewPermanentError(err error, message string) error {
	return &classifiedError{kind: ErrorTypePermanent, err: err, message: message}
}

// NewDegradedError wraps err as a degraded-mode error: the operation failed
// but a fallback behavior is available and was (or should be) used.
func NewDegradedError(err error, message, fallback string) error {
	return &classifiedError{kind: ErrorTypeDegraded, err: err, message: message, fallback: fallback}
}

// IsTransient reports whether err should be retried: either explicitly
// classified as transient, or recognisable as a rate limit, server error,
// timeout, or connection failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind == ErrorTypeTransient
	}
	if isNetworkError(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return true
	}
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") {
		return true
	}
	if code := extractHTTPStatusCode(err); code != 0 {
		return code == 429 || (code >= 500 && code < 600)
	}
	return false
}

// IsPermanent reports whether err should not be retried: either explicitly
// classified as permanent, or recognisable as a client-side HTTP error or a
// local file/permission failure.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind == ErrorTypePermanent
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "permission denied") {
		return true
	}
	if code := extractHTTPStatusCode(err); code != 0 {
		return code == 400 || code == 401 || code == 403 || code == 404
	}
	return false
}

// IsDegraded reports whether err was explicitly classified as degraded.
func IsDegraded(err error) bool {
	var ce *classifiedError
	return errors.As(err, &ce) && ce.kind == ErrorTypeDegraded
}

// GetErrorType returns the best-effort classification of err.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind
	}
	if IsTransient(err) {
		return ErrorTypeTransient
	}
	if IsPermanent(err) {
		return ErrorTypePermanent
	}
	return ErrorTypeUnknown
}

// FormatForLLM renders err as a short, user-facing explanation suitable for
// inclusion in a model-facing error message.
func FormatForLLM(err error) string {
	if err == nil {
		return ""
	}
	var ce *classifiedError
	if errors.As(err, &ce) && ce.message != "" {
		return ce.message
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connect: connection refused") && strings.Contains(msg, "127.0.0.1"):
		return "llama.cpp server is not running or is unreachable."
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return "Rate limit reached. Please retry shortly."
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "The request timed out."
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return "Authentication failed. Check the configured credentials."
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return "The requested resource was not found."
	case strings.Contains(msg, "500") || strings.Contains(msg, "internal server error"):
		return "Server error. Please retry."
	default:
		return err.Error()
	}
}

// extractHTTPStatusCode pulls a 3-digit HTTP status code out of an error
// message, if present.
func extractHTTPStatusCode(err error) int {
	if err == nil {
		return 0
	}
	msg := strings.ToLower(err.Error())
	fields := strings.FieldsFunc(msg, func(r rune) bool {
		return !(r >= '0' && r <= '9')
	})
	for _, f := range fields {
		if len(f) != 3 {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		if n >= 100 && n < 600 {
			return n
		}
	}
	return 0
}

type netErrorLike interface {
	Timeout() bool
}

func isNetworkError(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var tl netErrorLike
	if errors.As(err, &tl) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "network is unreachable")
}
