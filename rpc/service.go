package rpc

import (
	"fmt"
	"reflect"
)

// NewService scans the exported methods of rcvr and returns every method with
// a shape accepted by Func, named "Type.Method" (e.g. "Arith.Add").
// rcvr must be a pointer to a struct.
func NewService(rcvr any) (Methods, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	return NewNamedService(typ.Elem().Name(), rcvr)
}

// NewNamedService is like NewService with an explicit service name.
func NewNamedService(name string, rcvr any) (Methods, error) {
	val := reflect.ValueOf(rcvr)
	typ := val.Type()

	methods := make(Methods)
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if !m.IsExported() {
			continue
		}
		h, err := Func(val.Method(i).Interface())
		if err != nil {
			continue // Not an RPC-shaped method
		}
		methods[name+"."+m.Name] = h
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("rpc: type %s has no exported methods of suitable shape", typ)
	}
	return methods, nil
}
