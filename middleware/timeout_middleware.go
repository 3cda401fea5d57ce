package middleware

import (
	"context"
	"errors"
	"time"

	"stream-rpc/message"
)

// ErrTimeout is returned when a single invocation exceeds its deadline.
var ErrTimeout = errors.New("invocation timed out")

// TimeoutMiddleware bounds the duration of a single invocation.
// The wrapped function receives a context that is cancelled at the
// deadline, so a cooperative function stops producing after the timeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, in *message.Message) ([]*message.Message, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				out []*message.Message
				err error
			}
			done := make(chan result, 1)
			go func() {
				out, err := next(ctx, in)
				done <- result{out, err}
			}()

			select {
			case r := <-done:
				return r.out, r.err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, ErrTimeout
				}
				return nil, ctx.Err()
			}
		}
	}
}
