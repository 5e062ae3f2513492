package ratelimit

import (
	"golang.org/x/time/rate"
)

// New returns a limiter allowing requestsPerSecond sustained requests with the given burst.
// A non-positive rate disables limiting.
func New(requestsPerSecond float64, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	return rate.NewLimiter(rate.Limit(requestsPerSecond), max(burst, 1))
}
