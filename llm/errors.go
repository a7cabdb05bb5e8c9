package llm

import "fmt"

// baseError carries a message and an optional cause for all llm error types.
type baseError struct {
	Message string
	Cause   error
}

func (e *baseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *baseError) Unwrap() error {
	return e.Cause
}

// TransportError is a network-level failure (timeout, connection refused,
// DNS). Adapters never retry these; the outer iteration driver may.
type TransportError struct {
	baseError
	Provider string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("[%s] transport error: %s", e.Provider, e.baseError.Error())
}

// ProviderError is a non-2xx response from an upstream provider. It carries
// the status code and response body so the caller can log and decide whether
// to retry the whole iteration.
type ProviderError struct {
	baseError
	Provider   string
	StatusCode int
	Body       string
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// ProtocolError indicates a malformed or unparseable provider response, or a
// tool-call/result correlation violation in the agent loop.
type ProtocolError struct {
	baseError
	Provider string
}

func (e *ProtocolError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] protocol error: %s", e.Provider, e.baseError.Error())
	}
	return "protocol error: " + e.baseError.Error()
}

// ConfigurationError indicates invalid or missing configuration (unknown
// provider, missing credential). Always fatal, never retryable.
type ConfigurationError struct {
	baseError
}

// NewTransportError wraps a network-level failure.
func NewTransportError(provider string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{Message: "request failed", Cause: cause},
		Provider:  provider,
	}
}

// NewProtocolError reports a malformed response or correlation violation.
func NewProtocolError(provider, message string) *ProtocolError {
	return &ProtocolError{
		baseError: baseError{Message: message},
		Provider:  provider,
	}
}

// NewConfigurationError reports invalid configuration.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{baseError: baseError{Message: fmt.Sprintf(format, args...)}}
}

// ErrorFromStatusCode maps a non-2xx HTTP status to a ProviderError with the
// retryability the status implies: 408/429/5xx are retryable, everything
// else in the 4xx range is not.
func ErrorFromStatusCode(provider string, statusCode int, message, body string, retryAfter *float64) *ProviderError {
	pe := &ProviderError{
		baseError:  baseError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		Body:       body,
		RetryAfter: retryAfter,
	}
	switch {
	case statusCode == 408, statusCode == 429:
		pe.Retryable = true
	case statusCode >= 500:
		pe.Retryable = true
	default:
		pe.Retryable = false
	}
	return pe
}

// IsRetryable reports whether err is safe to retry at the iteration level.
// Transport errors and retryable provider errors qualify; protocol and
// configuration errors never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *TransportError:
		return true
	case *ProviderError:
		return e.Retryable
	case *ProtocolError:
		return false
	case *ConfigurationError:
		return false
	default:
		return false
	}
}
