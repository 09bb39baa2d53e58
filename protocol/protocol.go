// Package protocol implements the binary frame protocol that carries envelopes
// over a byte stream.
//
// It solves TCP's sticky packet problem by using a fixed-size 10-byte header
// followed by a variable-length body. The receiver reads the header first to
// determine the body length, then reads exactly that many bytes. Correlation
// lives inside the envelope (its id), so the header carries no sequence number.
//
// Frame format:
//
//	0      3  4  5  6         10
//	┌──────┬──┬──┬──┬─────────┬───────────────┐
//	│magic │v │ct│fk│ bodyLen │    body ...    │
//	│ mjr  │01│  │  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic number bytes: "mjr" (mini-jsonrpc).
// Used to reject non-protocol connections early (e.g., HTTP clients hitting the wrong port).
const (
	MagicNumber byte = 0x6d // 'm'
	MagicByte2  byte = 0x6a // 'j'
	MagicByte3  byte = 0x72 // 'r'
	Version     byte = 0x01
	HeaderSize  int  = 10 // 3 (magic) + 1 (version) + 1 (codec) + 1 (frameKind) + 4 (bodyLen)

	// MaxBodySize bounds a single frame body.
	MaxBodySize uint32 = 16 << 20
)

var ErrBodyTooLarge = errors.New("frame body too large")

// FrameKind mirrors the classification of the envelope in the body, so a
// reader can skip heartbeats without decoding.
type FrameKind byte

const (
	FrameUnrecognized FrameKind = 0
	FrameRequest      FrameKind = 1
	FrameNotification FrameKind = 2
	FrameResponse     FrameKind = 3
	FrameHeartbeat    FrameKind = 4 // KeepAlive frame (no body)
)

// Codec type constants, mirrored from codec package to avoid circular import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

// Header represents the fixed 10-byte frame header.
type Header struct {
	CodecType byte      // Serialization format: 0=JSON, 1=Binary
	Kind      FrameKind // Request, Notification, Response or Heartbeat
	BodyLen   uint32    // Body length in bytes
}

// Encode writes a complete frame (header + body) to w in a single Write.
// The caller must hold a write lock if multiple goroutines share the same writer.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint32(len(body)) > MaxBodySize {
		return ErrBodyTooLarge
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(body))

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.Kind)
	// Body length: 4 bytes, big-endian (network byte order)
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(body)))

	_, err := w.Write(append(buf, body...))
	return err
}

// Decode reads a complete frame (header + body) from r.
// It validates the magic number, version, codec type, frame kind and body size.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}
	kind := FrameKind(headerBuf[5])
	if kind > FrameHeartbeat {
		return nil, nil, fmt.Errorf("unsupported frame kind: %d", kind)
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[6:10])
	if bodyLen > MaxBodySize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, bodyLen)
	}

	// Read exactly bodyLen bytes, this is how we solve TCP sticky packet
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		Kind:      kind,
		BodyLen:   bodyLen,
	}, body, nil
}
