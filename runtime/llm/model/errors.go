package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failure into the coarse categories callers use to
// decide retry and UX behavior. The taxonomy is semantic, not tied to any
// one provider's status codes.
type ErrorKind string

const (
	ErrorKindConfiguration   ErrorKind = "configuration"
	ErrorKindAuth            ErrorKind = "auth"
	ErrorKindAccessDenied    ErrorKind = "access_denied"
	ErrorKindNotFound        ErrorKind = "not_found"
	ErrorKindInvalidRequest  ErrorKind = "invalid_request"
	ErrorKindRateLimited     ErrorKind = "rate_limited"
	ErrorKindServer          ErrorKind = "server"
	ErrorKindNetwork         ErrorKind = "network"
	ErrorKindContentFilter   ErrorKind = "content_filter"
	ErrorKindContextLength   ErrorKind = "context_length"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindAbort           ErrorKind = "abort"
	ErrorKindStream          ErrorKind = "stream"
	ErrorKindToolCall        ErrorKind = "tool_call"
	ErrorKindNoObject        ErrorKind = "no_object_generated"
	ErrorKindUnknown         ErrorKind = "unknown"
)

// Retryable reports whether a failure of this kind may succeed on retry
// without changing the request. Rate-limit/server/network failures are
// retryable; the adapter layer never retries internally (policy is
// caller-owned, per spec §4.9/§7).
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindRateLimited, ErrorKindServer, ErrorKindNetwork:
		return true
	default:
		return false
	}
}

// ProviderError describes a failure returned by a model provider. It
// crosses package boundaries so callers receive stable, structured
// information regardless of which adapter produced it.
type ProviderError struct {
	Provider   string
	Operation  string
	HTTPStatus int
	Kind       ErrorKind
	Code       string
	Msg        string
	RequestID  string
	RetryAfter string
	Cause      error
}

func (e *ProviderError) Error() string {
	op := e.Operation
	if op == "" {
		op = "request"
	}
	status := ""
	if e.HTTPStatus > 0 {
		status = fmt.Sprintf("%d ", e.HTTPStatus)
	}
	code := ""
	if e.Code != "" {
		code = e.Code + ": "
	}
	msg := e.Msg
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	return fmt.Sprintf("%s %s %s(%s): %s", e.Provider, e.Kind, status, op, code+msg)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether retrying the request may succeed.
func (e *ProviderError) Retryable() bool { return e.Kind.Retryable() }

// AsProviderError returns the first ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Sentinel error types for the non-provider-HTTP categories of the taxonomy.
type (
	// ConfigurationError signals malformed caller options: both prompt and
	// messages supplied, an unknown provider, or no default provider
	// configured. Never retried.
	ConfigurationError struct{ Msg string }

	// TimeoutError signals a caller total timeout or per-request transport
	// timeout elapsed.
	TimeoutError struct{ Msg string }

	// AbortError signals a caller cancellation signal tripped, including a
	// signal that was already tripped before the call began.
	AbortError struct{ Msg string }

	// StreamError signals a malformed stream frame or a stream that ended
	// without a FINISH event carrying a Response.
	StreamError struct{ Msg string }

	// NoObjectGeneratedError signals that generate_object could not extract
	// a structured object: the provider returned plain text instead of the
	// expected tool call, or the extracted payload failed JSON parsing or
	// schema validation. Fatal to the enclosing generate_object call.
	NoObjectGeneratedError struct {
		Msg   string
		Cause error
	}
)

func (e *ConfigurationError) Error() string { return "configuration: " + e.Msg }
func (e *TimeoutError) Error() string       { return "timeout: " + e.Msg }
func (e *AbortError) Error() string         { return "abort: " + e.Msg }
func (e *StreamError) Error() string        { return "stream: " + e.Msg }
func (e *NoObjectGeneratedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("no object generated: %s: %v", e.Msg, e.Cause)
	}
	return "no object generated: " + e.Msg
}
func (e *NoObjectGeneratedError) Unwrap() error { return e.Cause }

// ClassifyHTTPStatus maps an HTTP status code and body message keywords to a
// ProviderError, mirroring the teacher's errorFromStatusCode classifier
// (runtime/agent/model/provider_error.go) generalized with the additional
// categories spec §7 calls for (content-filter, context-length).
func ClassifyHTTPStatus(provider, operation string, status int, body, requestID string, cause error) *ProviderError {
	kind := classifyKind(status, body)
	return &ProviderError{
		Provider:   provider,
		Operation:  operation,
		HTTPStatus: status,
		Kind:       kind,
		Msg:        body,
		RequestID:  requestID,
		Cause:      cause,
	}
}

func classifyKind(status int, body string) ErrorKind {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "context length") || strings.Contains(lower, "context_length") || strings.Contains(lower, "maximum context"):
		return ErrorKindContextLength
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "content_filter") || strings.Contains(lower, "safety"):
		return ErrorKindContentFilter
	}
	switch status {
	case 401:
		return ErrorKindAuth
	case 403:
		return ErrorKindAccessDenied
	case 404:
		return ErrorKindNotFound
	case 400, 422:
		return ErrorKindInvalidRequest
	case 413:
		return ErrorKindContextLength
	case 429:
		return ErrorKindRateLimited
	}
	if status >= 500 {
		return ErrorKindServer
	}
	if status == 0 {
		return ErrorKindNetwork
	}
	return ErrorKindUnknown
}
