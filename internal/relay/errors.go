package relay

import "errors"

var (
	ErrInvalidPayload    = errors.New("invalid event payload")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
