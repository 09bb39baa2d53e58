package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-jsonrpc/message"
)

type Args struct {
	A, B int
}

type Arith struct{}

func (a *Arith) Add(args Args) int {
	return args.A + args.B
}

func (a *Arith) Divide(ctx context.Context, x, y int) (int, error) {
	if y == 0 {
		return 0, errors.New("divide by zero")
	}
	return x / y, nil
}

func (a *Arith) Pair(x int, y ...int) int { return x }

func TestFuncShapes(t *testing.T) {
	ctx := context.Background()

	h, err := Func(func(ctx context.Context, s string) (string, error) { return s + "!", nil })
	require.NoError(t, err)
	result, err := h.Invoke(ctx, message.Params{"hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi!", result)

	h, err = Func(func() error { return errors.New("nope") })
	require.NoError(t, err)
	_, err = h.Invoke(ctx, nil)
	assert.EqualError(t, err, "nope")

	h, err = Func(func(n int) {})
	require.NoError(t, err)
	result, err = h.Invoke(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestFuncRawParams(t *testing.T) {
	h := MustFunc(func(args Args, scale float64) float64 { return float64(args.A+args.B) * scale })

	result, err := h.Invoke(context.Background(), message.Params{json.RawMessage(`{"A":1,"B":2}`), json.RawMessage(`1.5`)})
	require.NoError(t, err)
	assert.Equal(t, 4.5, result)

	_, err = h.Invoke(context.Background(), message.Params{json.RawMessage(`"not an object"`)})
	var rpcErr message.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, message.CodeInvalidParams, rpcErr.Code)
}

func TestFuncRejectsBadShapes(t *testing.T) {
	for _, fn := range []any{
		nil,
		42,
		func(xs ...int) {},
		func() (int, int) { return 0, 0 },
		func() (int, error, bool) { return 0, nil, false },
	} {
		_, err := Func(fn)
		assert.ErrorIs(t, err, ErrInvalidHandlerType, "%T", fn)
	}
	assert.Panics(t, func() { MustFunc(3) })
}

func TestNewService(t *testing.T) {
	methods, err := NewService(&Arith{})
	require.NoError(t, err)
	assert.Contains(t, methods, "Arith.Add")
	assert.Contains(t, methods, "Arith.Divide")
	assert.NotContains(t, methods, "Arith.Pair", "variadic methods are skipped")

	h, ok := methods.Lookup("Arith.Divide")
	require.True(t, ok)
	result, err := h.Invoke(context.Background(), message.Params{10, 2})
	require.NoError(t, err)
	assert.Equal(t, 5, result)

	_, err = h.Invoke(context.Background(), message.Params{1, 0})
	assert.EqualError(t, err, "divide by zero")
}

func TestNewServiceRejectsNonPointer(t *testing.T) {
	_, err := NewService(Arith{})
	assert.Error(t, err)

	n := 3
	_, err = NewService(&n)
	assert.Error(t, err)

	_, err = NewService(&struct{}{})
	assert.Error(t, err)
}

func TestMethodsMerge(t *testing.T) {
	m := Methods{"a": MustFunc(func() int { return 1 })}
	m.Merge(Methods{"b": MustFunc(func() int { return 2 })})

	_, ok := m.Lookup("b")
	assert.True(t, ok)
	_, ok = m.Lookup("c")
	assert.False(t, ok)
}
