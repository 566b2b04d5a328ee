package llm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// isRateLimitMessage checks if an API error indicates quota exhaustion.
// Matches 429 status codes and RESOURCE_EXHAUSTED errors.
func isRateLimitMessage(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "quota")
}

// isModelUnavailableMessage checks if an API error indicates the requested
// model does not exist or is not accessible with the current key.
func isModelUnavailableMessage(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "does not exist") ||
		strings.Contains(errStr, "not supported") ||
		strings.Contains(errStr, "invalid model")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// extractRetryDelay parses the API-suggested retry delay from an error.
// Returns 0 if no delay is found in the error message.
//
// Example error message:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// classifyAPIError wraps a raw provider error into the outcome taxonomy.
// Errors that match neither pattern pass through unchanged.
func classifyAPIError(err error, model string) error {
	if err == nil {
		return nil
	}
	if isRateLimitMessage(err) {
		return &RateLimitError{RetryAfter: extractRetryDelay(err), Err: err}
	}
	if isModelUnavailableMessage(err) {
		return &ModelUnavailableError{Model: model, Err: err}
	}
	return err
}
