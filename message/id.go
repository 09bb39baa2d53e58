package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID identifies a request. It is either a string or an integer and is
// comparable, so it can key the pending-call table directly.
type ID struct {
	name     string
	number   int64
	isString bool
}

// StringID returns a string identifier.
func StringID(s string) ID { return ID{name: s, isString: true} }

// Int64ID returns an integer identifier.
func Int64ID(n int64) ID { return ID{number: n} }

// IsString reports whether the identifier is a string.
func (id ID) IsString() bool { return id.isString }

func (id ID) String() string {
	if id.isString {
		return strconv.Quote(id.name)
	}
	return "#" + strconv.FormatInt(id.number, 10)
}

// Raw returns the underlying string or int64 value.
func (id ID) Raw() any {
	if id.isString {
		return id.name
	}
	return id.number
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return json.Marshal(id.name)
	}
	return []byte(strconv.FormatInt(id.number, 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: must be a string or an integer", data)
	}
	*id = Int64ID(n)
	return nil
}
