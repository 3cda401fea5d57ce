package middleware

import (
	"context"
	"time"

	"stream-rpc/message"

	"github.com/sirupsen/logrus"
)

// LoggingMiddleware logs every invocation of the wrapped function: the
// bound definition name, the time taken, how many messages it produced,
// and the error if it failed.
func LoggingMiddleware(definition string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, in *message.Message) ([]*message.Message, error) {
			start := time.Now()
			out, err := next(ctx, in)
			duration := time.Since(start)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": definition,
					"duration": duration,
				}).Errorf("invocation failed: %v", err)
				return out, err
			}
			logrus.WithFields(logrus.Fields{
				"function": definition,
				"duration": duration,
				"outputs":  len(out),
			}).Debug("invocation completed")
			return out, nil
		}
	}
}
