package llm

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genai"
)

// IsRetryable classifies provider errors for the retry policy. Rate
// limits, request timeouts, and server-side failures are transient;
// authentication and malformed-request rejections are fatal and must not
// consume retry budget.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests,
			apiErr.Code == http.StatusRequestTimeout:
			return true
		case apiErr.Code >= 500:
			return true
		default:
			// 4xx: bad request, invalid key, blocked content.
			return false
		}
	}

	// Per-attempt deadlines surface as context errors inside the attempt.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Anything else is assumed to be a transport hiccup.
	return true
}
