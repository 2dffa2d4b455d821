package reliability

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ent0n29/miku/internal/completion"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
// The relay never retries; the flag is reported so operators can tell transient faults from hard ones.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// FaultCode maps a completion error to a low-cardinality metric label.
func FaultCode(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	var fault *completion.Fault
	if errors.As(err, &fault) && fault.StatusCode > 0 {
		switch code := fault.StatusCode; {
		case code == http.StatusUnauthorized, code == http.StatusForbidden:
			return "auth"
		case code == http.StatusTooManyRequests:
			return "rate_limited"
		case code >= 500:
			return "upstream_5xx"
		case code >= 400:
			return "upstream_4xx"
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	return "unknown"
}

// Retryable reports whether err looks transient.
func Retryable(err error) bool {
	var fault *completion.Fault
	if errors.As(err, &fault) && fault.StatusCode > 0 {
		return IsRetryableHTTPStatus(fault.StatusCode)
	}
	switch FaultCode(err) {
	case "timeout", "network":
		return true
	default:
		return false
	}
}
