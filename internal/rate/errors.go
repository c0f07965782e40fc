package rate

import "errors"

var (
	// ErrRateLimited reports that the attempt budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures. Callers decide whether to fail open.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
