// Package codec serializes envelopes for the framed transport.
package codec

import "mini-jsonrpc/message"

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

type Codec interface {
	Encode(env *message.Envelope) ([]byte, error)
	Decode(data []byte, env *message.Envelope) error
	Type() CodecType // 0=JSON, 1=Binary
}

// GetCodec returns the codec for codecType, defaulting to JSON.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeBinary {
		return &BinaryCodec{}
	}

	return &JSONCodec{}
}

// ParseCodecType maps a configuration name ("json", "binary") to a CodecType.
func ParseCodecType(name string) (CodecType, bool) {
	switch name {
	case "", "json":
		return CodecTypeJSON, true
	case "binary":
		return CodecTypeBinary, true
	}
	return 0, false
}
