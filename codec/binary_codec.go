package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"mini-jsonrpc/message"
)

var errShortBuffer = errors.New("BinaryCodec: truncated envelope")

// ErrFieldTooLong is returned by Encode when a member does not fit its length prefix.
var ErrFieldTooLong = errors.New("BinaryCodec: field too long")

// Presence flags, first byte of a binary envelope.
const (
	flagID       byte = 1 << iota // id present
	flagStringID                  // id is a string (else int64)
	flagResult                    // result present
	flagError                     // error present
)

// BinaryCodec packs the envelope members as length-prefixed fields instead of
// a JSON object. Values (params, result, error) are still JSON-encoded since
// they are arbitrary.
//
//	flags(1) version(1+n) [id: int64(8) | len(2)+str] method(2+n) params(4+n) [result(4+n)] [error(4+n)]
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(env *message.Envelope) ([]byte, error) {
	var flags byte
	var params, result, errObj []byte
	var err error

	if env.ID != nil {
		flags |= flagID
		if env.ID.IsString() {
			flags |= flagStringID
		}
	}
	if len(env.Params) > 0 {
		if params, err = json.Marshal(env.Params); err != nil {
			return nil, err
		}
	}
	if env.Error != nil {
		flags |= flagError
		if errObj, err = json.Marshal(env.Error); err != nil {
			return nil, err
		}
	} else if env.Method == "" {
		flags |= flagResult
		if result, err = json.Marshal(env.Result); err != nil {
			return nil, err
		}
	}

	if err := checkLen("version", len(env.Version), math.MaxUint8); err != nil {
		return nil, err
	}
	if env.ID != nil {
		if raw, ok := env.ID.Raw().(string); ok {
			if err := checkLen("id", len(raw), math.MaxUint16); err != nil {
				return nil, err
			}
		}
	}
	if err := checkLen("method", len(env.Method), math.MaxUint16); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name string
		data []byte
	}{{"params", params}, {"result", result}, {"error", errObj}} {
		if err := checkLen(f.name, len(f.data), math.MaxUint32); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, 0, 16+len(env.Version)+len(env.Method)+len(params)+len(result)+len(errObj))
	buf = append(buf, flags, byte(len(env.Version)))
	buf = append(buf, env.Version...)

	if env.ID != nil {
		switch raw := env.ID.Raw().(type) {
		case string:
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(raw)))
			buf = append(buf, raw...)
		case int64:
			buf = binary.BigEndian.AppendUint64(buf, uint64(raw))
		}
	}

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(env.Method)))
	buf = append(buf, env.Method...)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(params)))
	buf = append(buf, params...)

	if flags&flagResult != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(result)))
		buf = append(buf, result...)
	}
	if flags&flagError != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(errObj)))
		buf = append(buf, errObj...)
	}
	return buf, nil
}

func checkLen(field string, n int, limit uint64) error {
	if uint64(n) > limit {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFieldTooLong, field, n, limit)
	}
	return nil
}

func (c *BinaryCodec) Decode(data []byte, env *message.Envelope) error {
	r := reader{data: data}

	flags := r.u8()
	version := r.bytes(int(r.u8()))

	var id *message.ID
	if flags&flagID != 0 {
		var v message.ID
		if flags&flagStringID != 0 {
			v = message.StringID(string(r.bytes(int(r.u16()))))
		} else {
			v = message.Int64ID(int64(r.u64()))
		}
		id = &v
	}

	method := r.bytes(int(r.u16()))
	params := r.bytes(int(r.u32()))

	var result, errObj []byte
	if flags&flagResult != 0 {
		result = r.bytes(int(r.u32()))
	}
	if flags&flagError != 0 {
		errObj = r.bytes(int(r.u32()))
	}
	if r.err != nil {
		return r.err
	}

	*env = message.Envelope{Version: string(version), ID: id, Method: string(method)}
	if len(params) > 0 {
		if err := env.Params.UnmarshalJSON(params); err != nil {
			return err
		}
	}
	if result != nil {
		env.Result = json.RawMessage(result)
	}
	if errObj != nil {
		env.Error = &message.Error{}
		if err := json.Unmarshal(errObj, env.Error); err != nil {
			return err
		}
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// reader consumes big-endian fields, remembering the first short read.
type reader struct {
	data []byte
	err  error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > len(r.data) {
		r.err = errShortBuffer
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[:n])
	r.data = r.data[n:]
	return out
}

func (r *reader) u8() byte {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
