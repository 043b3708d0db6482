package middleware

import (
	"bitcoin-rpc/transport"
	"context"
	"errors"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitMiddleware refuses calls beyond a token bucket of r per second with the given burst.
// Refused calls never reach the transport.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next transport.Transport) transport.Transport {
		return transport.TransportFunc(func(ctx context.Context, data []byte) ([]byte, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next.Request(ctx, data)
		})
	}
}
