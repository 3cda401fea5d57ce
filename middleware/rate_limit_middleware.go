package middleware

import (
	"context"
	"errors"

	"stream-rpc/message"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when an invocation is rejected by the limiter.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitMiddleware creates a token-bucket rate limiter shared by every
// exchange of the bound function. One token is spent per invocation, so a
// channel fan-out of N inbound units spends N tokens.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, in *message.Message) ([]*message.Message, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, in)
		}
	}
}
