package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-jsonrpc/deferred"
	"mini-jsonrpc/message"
	"mini-jsonrpc/rpc"
	"mini-jsonrpc/server"
)

type Args struct {
	A, B int
}

// Arith is the demo service.
type Arith struct{}

func (a *Arith) Add(args Args) int {
	return args.A + args.B
}

func (a *Arith) Multiply(args Args) int {
	return args.A * args.B
}

func (a *Arith) Divide(args Args) (int, error) {
	if args.B == 0 {
		return 0, message.ErrInvalidParams.WithMessage("divide by zero")
	}
	return args.A / args.B, nil
}

// registerDemo installs the demo methods on svr.
func registerDemo(svr *server.Server, logger *zap.Logger) error {
	if err := svr.Register(&Arith{}); err != nil {
		return err
	}

	// echo returns its parameters unchanged
	svr.Handle("echo", rpc.HandlerFunc(func(ctx context.Context, params message.Params) (any, error) {
		if params == nil {
			return []any{}, nil
		}
		return params, nil
	}))

	if err := svr.HandleFunc("log", func(text string) {
		logger.Info("remote log", zap.String("text", text))
	}); err != nil {
		return err
	}

	// sleep answers after ms milliseconds without holding the connection
	return svr.HandleFunc("sleep", func(ctx context.Context, ms int) *deferred.Deferred {
		return deferred.Go(func() (any, error) {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
				return ms, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
	})
}
