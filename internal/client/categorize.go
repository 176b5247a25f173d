package client

import "errors"

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (weatherApiErrorsTotal).
const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream4xx      ErrorCategory = "upstream_4xx"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return ErrorCategoryParsing
	}

	switch {
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrLocationNotFound):
		return ErrorCategoryLocationNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		switch {
		case netErr.StatusCode >= 500:
			return ErrorCategoryUpstream5xx
		case netErr.StatusCode >= 400:
			return ErrorCategoryUpstream4xx
		case IsTimeout(netErr.Err):
			return ErrorCategoryTimeout
		default:
			return ErrorCategoryNetwork
		}
	}

	if IsTimeout(err) {
		return ErrorCategoryTimeout
	}
	return ErrorCategoryUnknown
}
