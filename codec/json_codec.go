package codec

import (
	"encoding/json"

	"mini-jsonrpc/message"
)

// JSONCodec writes the standard JSON-RPC 2.0 wire form.
// Pros: human-readable, interoperable with any JSON-RPC implementation.
// Cons: values are parsed twice (envelope, then params on Bind).
type JSONCodec struct{}

func (c *JSONCodec) Encode(env *message.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (c *JSONCodec) Decode(data []byte, env *message.Envelope) error {
	return json.Unmarshal(data, env)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
