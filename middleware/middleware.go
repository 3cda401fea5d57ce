// Package middleware wraps the per-message invocation primitive of a bound
// function.
//
// A HandlerFunc is the "apply one" operation: decode already happened, one
// input message goes in, the function's output sequence comes out.
// Middlewares compose around it in an onion model and are chained once at
// bind time, not per exchange. Reactive transforms own their whole stream
// and are not wrapped per element.
package middleware

import (
	"context"

	"stream-rpc/message"
)

// HandlerFunc is the per-message invocation of a bound function: one input
// message, a sequence of zero or more output messages.
type HandlerFunc func(ctx context.Context, in *message.Message) ([]*message.Message, error)

// Middleware wraps a HandlerFunc with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines multiple middlewares into one.
// Chain(A, B, C)(handler) → A(B(C(handler))), so execution order is
// A.before → B.before → C.before → handler → C.after → B.after → A.after.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
