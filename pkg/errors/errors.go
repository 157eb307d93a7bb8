// Package errors classifies the failures ducomon deals with. Every failure
// that crosses a package boundary is a *ServiceError, so the polling loop can
// tell a cycle worth retrying from one that will fail the same way again.
package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ErrorType is the category of a ServiceError
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"    // dial, TLS and connection resets
	ErrorTypeHTTP       ErrorType = "http"       // non-2xx status from a pool endpoint
	ErrorTypeDecode     ErrorType = "decode"     // unreadable or non-JSON body
	ErrorTypeValidation ErrorType = "validation" // decoded payload with malformed fields
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeKafka      ErrorType = "kafka"   // snapshot publishing
	ErrorTypeCache      ErrorType = "cache"   // Redis snapshot cache
	ErrorTypeMetrics    ErrorType = "metrics" // InfluxDB export
	ErrorTypeInternal   ErrorType = "internal"
)

// retryableTypes lists the categories worth another attempt. A validation
// error would fail identically on the next try.
var retryableTypes = map[ErrorType]bool{
	ErrorTypeNetwork: true,
	ErrorTypeHTTP:    true,
	ErrorTypeDecode:  true,
	ErrorTypeTimeout: true,
	ErrorTypeKafka:   true,
	ErrorTypeCache:   true,
}

// transientMarkers are substrings of plain error messages that indicate a
// condition likely to clear up by itself.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"network unreachable",
	"no such host",
	"timeout",
	"temporary failure",
	"too many connections",
	"eof",
}

// ServiceError is a classified failure of one named operation
type ServiceError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]any
	Retryable bool
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("%s operation '%s' failed: %s", e.Type, e.Operation, e.Message)
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the operation may succeed if repeated
func (e *ServiceError) IsRetryable() bool { return e.Retryable }

// WithContext attaches a key/value pair and returns e for chaining
func (e *ServiceError) WithContext(key string, value any) *ServiceError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// LogValue renders the error as a group so log lines carry its type,
// operation and context as separate attributes.
func (e *ServiceError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", string(e.Type)),
		slog.String("operation", e.Operation),
		slog.String("message", e.Message),
		slog.Bool("retryable", e.Retryable),
	}
	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, e.Context[k]))
	}

	return slog.GroupValue(attrs...)
}

// New returns a ServiceError without a cause
func New(errorType ErrorType, operation, message string) *ServiceError {
	return &ServiceError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Retryable: retryableTypes[errorType],
	}
}

// Wrap classifies err under operation. A wrapped ServiceError keeps its
// retryable flag. Any other error is retryable when its new type is, or when
// its message looks transient. Cancellation is never retryable. Wrap(nil)
// returns nil.
func Wrap(err error, errorType ErrorType, operation, message string) *ServiceError {
	if err == nil {
		return nil
	}

	se := New(errorType, operation, message)
	se.Cause = err

	inner, wrapsService := err.(*ServiceError)
	switch {
	case wrapsService:
		se.Retryable = inner.Retryable
	case isCanceled(err):
		se.Retryable = false
	default:
		se.Retryable = se.Retryable || isTransient(err)
	}
	return se
}

// IsType reports whether err, or anything it wraps, is a ServiceError of
// errorType.
func IsType(err error, errorType ErrorType) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Type == errorType
}

// IsRetryable reports whether err is worth another attempt. Plain errors are
// judged by their message.
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return isTransient(err)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isTransient(err error) bool {
	if err == nil || isCanceled(err) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
