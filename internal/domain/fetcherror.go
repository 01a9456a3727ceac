package domain

import "time"

// FetchErrorType classifies a failed enrichment attempt. The set is
// closed; anything that does not match a known condition is Unknown.
type FetchErrorType int

const (
	ErrorUnknown FetchErrorType = iota
	ErrorRateLimit
	ErrorBlockedURL
	ErrorSocialMedia
	ErrorNoURL
	ErrorNetwork
	ErrorAPI
)

func (t FetchErrorType) String() string {
	switch t {
	case ErrorRateLimit:
		return "RATE_LIMIT"
	case ErrorBlockedURL:
		return "BLOCKED_URL"
	case ErrorSocialMedia:
		return "SOCIAL_MEDIA"
	case ErrorNoURL:
		return "NO_URL"
	case ErrorNetwork:
		return "NETWORK_ERROR"
	case ErrorAPI:
		return "API_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Retryable reports whether this category is eligible for automatic
// retry within the attempt budget. Everything else is terminal for the
// session.
func (t FetchErrorType) Retryable() bool {
	return t == ErrorRateLimit || t == ErrorNetwork
}

// FetchError records one classified enrichment failure for an article.
type FetchError struct {
	Type         FetchErrorType
	Message      string
	Details      string
	ResponseCode int
	Timestamp    time.Time
}
