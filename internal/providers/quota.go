package providers

import (
	"context"
	"errors"
	"strings"
)

// quotaNeedles are the message fragments providers use when an account is
// out of credit. Matching is case-insensitive on the full error text.
var quotaNeedles = []string{
	"credit balance is too low",
	"credit balance too low",
	"insufficient credits",
	"insufficient_quota",
	"exceeded your current quota",
	"plans & billing",
	"billing details",
}

// IsQuotaError reports whether an error indicates an exhausted account
// balance rather than a transient failure. Quota errors will not heal with
// retries, so callers switch providers instead.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range quotaNeedles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// classifyError buckets an error into the coarse types recorded in usage logs.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case IsQuotaError(err):
		return "quota"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case strings.Contains(strings.ToLower(err.Error()), "rate limit"),
		strings.Contains(err.Error(), "429"):
		return "rate_limit"
	default:
		return "api_error"
	}
}
