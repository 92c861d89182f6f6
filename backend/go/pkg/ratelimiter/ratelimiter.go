package ratelimiter

// RateLimiter is the interface for rate limiting.
// Allow returns true if a call may proceed now.
type RateLimiter interface {
	Allow() bool
}
