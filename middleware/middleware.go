// Package middleware wraps method invocation on a peer.
//
// A HandlerFunc receives the inbound request or notification and returns the
// method's outcome: an immediate value, a deferred.Awaitable, or an error.
// Middlewares compose in the onion model:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	A.before → B.before → C.before → handler → C.after → B.after → A.after
package middleware

import (
	"context"

	"mini-jsonrpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Envelope) (any, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
