package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-jsonrpc/message"
)

// LoggingMiddleware logs the method, its kind and the time spent in the
// synchronous part of the invocation.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Envelope) (any, error) {
			start := time.Now()
			result, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Stringer("kind", message.Classify(req)),
				zap.Duration("duration", time.Since(start)),
			}
			if req.ID != nil {
				fields = append(fields, zap.Stringer("id", *req.ID))
			}
			if err != nil {
				logger.Warn("method failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("method invoked", fields...)
			}
			return result, err
		}
	}
}
