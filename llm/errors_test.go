package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{408, true},
		{413, false},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
	}

	for _, tt := range tests {
		err := ErrorFromStatusCode("glm", tt.status, "test error", "", nil)
		if err.StatusCode != tt.status {
			t.Errorf("status %d: got StatusCode %d", tt.status, err.StatusCode)
		}
		if err.Retryable != tt.retryable {
			t.Errorf("status %d: expected retryable=%v", tt.status, tt.retryable)
		}
		if IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: IsRetryable disagrees with the flag", tt.status)
		}
	}
}

func TestErrorFromStatusCodeRetryAfter(t *testing.T) {
	after := 2.5
	err := ErrorFromStatusCode("claude", 429, "slow down", "", &after)
	if err.RetryAfter == nil || *err.RetryAfter != 2.5 {
		t.Errorf("expected RetryAfter=2.5, got %v", err.RetryAfter)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"transport error", NewTransportError("glm", errors.New("conn reset")), true},
		{"protocol error", NewProtocolError("glm", "bad envelope"), false},
		{"config error", NewConfigurationError("missing key"), false},
		{"retryable provider error", ErrorFromStatusCode("glm", 503, "down", "", nil), true},
		{"non-retryable provider error", ErrorFromStatusCode("glm", 401, "bad key", "", nil), false},
		{"plain error", errors.New("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsRetryable(tt.err)
			if got != tt.retryable {
				t.Errorf("IsRetryable(%T) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewTransportError("codex", cause)
	if !errors.Is(err, cause) {
		t.Error("expected TransportError to unwrap to its cause")
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := ErrorFromStatusCode("glm", 429, "rate limit exceeded", `{"error":"rate_limit"}`, nil)
	msg := err.Error()
	if !strings.Contains(msg, "glm") || !strings.Contains(msg, "rate limit") {
		t.Errorf("error message missing expected content: %q", msg)
	}
}

func TestConfigurationErrorFormat(t *testing.T) {
	err := NewConfigurationError("unknown provider %q", "gemini")
	if !strings.Contains(err.Error(), "gemini") {
		t.Errorf("expected formatted message, got %q", err.Error())
	}
}
