package rpc

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"mini-jsonrpc/message"
)

var ErrInvalidHandlerType = errors.New("invalid handler type")

// Handler is a method implementation. It receives the ordered params of the
// request or notification and returns an immediate value, a
// deferred.Awaitable that settles later, or an error.
type Handler interface {
	Invoke(ctx context.Context, params message.Params) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, params message.Params) (any, error)

func (f HandlerFunc) Invoke(ctx context.Context, params message.Params) (any, error) {
	return f(ctx, params)
}

// MethodTable maps method names to handlers. The peer only reads it.
type MethodTable interface {
	Lookup(method string) (Handler, bool)
}

// Methods is the map-backed MethodTable.
type Methods map[string]Handler

// Lookup implements MethodTable. A nil handler counts as absent.
func (m Methods) Lookup(method string) (Handler, bool) {
	h, ok := m[method]
	return h, ok && h != nil
}

// Merge copies every entry of other into m, replacing existing names.
func (m Methods) Merge(other Methods) {
	for name, h := range other {
		m[name] = h
	}
}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// funcHandler invokes a plain Go function through reflection.
type funcHandler struct {
	fn        reflect.Value
	params    []reflect.Type // positional params, context excluded
	takesCtx  bool
	hasResult bool
	hasError  bool
}

// Func adapts a plain Go function to Handler. Accepted shapes:
//
//	func([ctx context.Context,] p1 T1, p2 T2, ...) (R, error)
//	func([ctx context.Context,] p1 T1, ...) R
//	func([ctx context.Context,] p1 T1, ...) error
//	func([ctx context.Context,] p1 T1, ...)
//
// Each positional param is decoded into its declared type. Missing trailing
// params are passed as zero values; extra params fail with Invalid params.
func Func(fn any) (Handler, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("handler must be a function, got %T: %w", fn, ErrInvalidHandlerType)
	}
	typ := v.Type()
	if typ.IsVariadic() {
		return nil, fmt.Errorf("variadic handler %v is not supported: %w", typ, ErrInvalidHandlerType)
	}

	h := &funcHandler{fn: v}
	for i := 0; i < typ.NumIn(); i++ {
		in := typ.In(i)
		if i == 0 && in == contextType {
			h.takesCtx = true
			continue
		}
		h.params = append(h.params, in)
	}

	switch typ.NumOut() {
	case 0:
	case 1:
		if typ.Out(0) == errorType {
			h.hasError = true
		} else {
			h.hasResult = true
		}
	case 2:
		if typ.Out(1) != errorType {
			return nil, fmt.Errorf("handler's second result must be error, got %v: %w", typ.Out(1), ErrInvalidHandlerType)
		}
		h.hasResult, h.hasError = true, true
	default:
		return nil, fmt.Errorf("handler must return at most 2 values, got %d: %w", typ.NumOut(), ErrInvalidHandlerType)
	}
	return h, nil
}

// MustFunc is like Func but panics on an unsupported function shape.
func MustFunc(fn any) Handler {
	h, err := Func(fn)
	if err != nil {
		panic(err)
	}
	return h
}

func (h *funcHandler) Invoke(ctx context.Context, params message.Params) (any, error) {
	if len(params) > len(h.params) {
		return nil, message.ErrInvalidParams.WithMessage(
			fmt.Sprintf("Invalid params: got %d, want at most %d", len(params), len(h.params)))
	}

	in := make([]reflect.Value, 0, len(h.params)+1)
	if h.takesCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	for i, typ := range h.params {
		arg := reflect.New(typ)
		if i < len(params) {
			if err := message.Convert(params[i], arg.Interface()); err != nil {
				return nil, message.ErrInvalidParams.WithMessage(fmt.Sprintf("Invalid params: param %d: %v", i, err))
			}
		}
		in = append(in, arg.Elem())
	}

	out := h.fn.Call(in)

	var result any
	if h.hasResult {
		result = out[0].Interface()
	}
	if h.hasError {
		if errV := out[len(out)-1]; !errV.IsNil() {
			return nil, errV.Interface().(error)
		}
	}
	return result, nil
}
