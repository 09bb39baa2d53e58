package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Params is the ordered parameter list of a request or notification.
// Elements are native Go values when built locally and json.RawMessage when
// decoded from the wire.
type Params []any

// UnmarshalJSON implements json.Unmarshaler. A by-name params object is kept as
// a single positional value.
func (p *Params) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = nil
	case len(data) > 0 && data[0] == '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return err
		}
		out := make(Params, len(raws))
		for i, raw := range raws {
			out[i] = raw
		}
		*p = out
	default:
		*p = Params{json.RawMessage(append([]byte(nil), data...))}
	}
	return nil
}

// Bind decodes the positional parameters into the given pointers, in order.
// Missing trailing parameters leave their destination untouched.
func (p Params) Bind(dst ...any) error {
	if len(p) > len(dst) {
		return fmt.Errorf("too many params: got %d, want at most %d", len(p), len(dst))
	}
	for i, v := range p {
		if err := Convert(v, dst[i]); err != nil {
			return fmt.Errorf("param %d: %w", i, err)
		}
	}
	return nil
}

// Convert stores src into the value dst points to. json.RawMessage sources are
// unmarshaled; values already assignable are stored as is; anything else goes
// through a JSON round trip.
func Convert(src any, dst any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer, got %T", dst)
	}

	switch s := src.(type) {
	case json.RawMessage:
		return json.Unmarshal(s, dst)
	case []byte:
		if _, ok := dst.(*[]byte); !ok {
			return json.Unmarshal(s, dst)
		}
	}

	if src == nil {
		dv.Elem().Set(reflect.Zero(dv.Elem().Type()))
		return nil
	}

	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(sv)
		return nil
	}

	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
