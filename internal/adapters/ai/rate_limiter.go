package ai

import (
	"golang.org/x/time/rate"
)

// NewRequestLimiter builds a token-bucket limiter for provider requests.
// reqPerMinute <= 0 disables limiting.
func NewRequestLimiter(reqPerMinute int) *rate.Limiter {
	if reqPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	burst := reqPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(float64(reqPerMinute)/60.0), burst)
}
