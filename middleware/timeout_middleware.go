package middleware

import (
	"context"
	"errors"
	"time"

	"mini-jsonrpc/deferred"
	"mini-jsonrpc/message"
)

var ErrTimeout = errors.New("request timed out")

type outcome struct {
	result any
	err    error
}

// TimeOutMiddleware bounds an invocation, including a deferred outcome the
// method returns. The handler's context is cancelled when the bound expires.
// A deferred outcome is bounded on its own goroutine: the middleware hands
// back a new Awaitable right away so the dispatcher is never held up.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)

			done := make(chan outcome, 1)
			go func() {
				result, err := next(ctx, req)
				done <- outcome{result, err}
			}()

			select {
			case o := <-done:
				if a, ok := o.result.(deferred.Awaitable); ok && o.err == nil {
					return bounded(ctx, cancel, a), nil
				}
				cancel()
				return o.result, timeoutError(o.err)
			case <-ctx.Done():
				err := ctx.Err()
				cancel()
				return nil, timeoutError(err)
			}
		}
	}
}

// bounded settles the returned Deferred with a's outcome or with the bound's
// expiry, whichever comes first, then releases ctx.
func bounded(ctx context.Context, cancel context.CancelFunc, a deferred.Awaitable) *deferred.Deferred {
	d := deferred.New()
	go func() {
		defer cancel()
		result, err := deferred.Await(ctx, a)
		if err != nil {
			d.Reject(timeoutError(err))
			return
		}
		d.Resolve(result)
	}()
	return d
}

// timeoutError 只把超时映射为 ErrTimeout，上游取消原样返回
func timeoutError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
