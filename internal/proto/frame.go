package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire framing: [4-byte big-endian payload length][payload bytes].
// The payload is a UTF-8 JSON object with no terminator on the wire.
const (
	FrameHeaderSize = 4
	MaxPayloadSize  = 64 * 1024
)

// ErrFrameTooLarge reports a frame whose declared payload length exceeds
// MaxPayloadSize. The peer is violating the protocol and the caller must
// drop the connection; the oversized payload is never allocated.
var ErrFrameTooLarge = errors.New("frame payload exceeds maximum size")

// EncodeFrame prepends the length header to payload and returns the
// complete frame.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[FrameHeaderSize:], payload)
	return frame
}

// DecodeFrame tries to extract one complete frame from buf.
//
// It returns (0, nil, nil) when buf does not yet hold a complete frame,
// and (consumed, payload, nil) on success where consumed covers the header
// plus payload. The returned payload aliases buf; callers that retain it
// past the next buffer mutation must copy. ErrFrameTooLarge is returned
// when the declared length is over the cap.
func DecodeFrame(buf []byte) (int, []byte, error) {
	if len(buf) < FrameHeaderSize {
		return 0, nil, nil
	}
	payloadLen := binary.BigEndian.Uint32(buf)
	if payloadLen > MaxPayloadSize {
		return 0, nil, fmt.Errorf("%w: %d bytes declared", ErrFrameTooLarge, payloadLen)
	}
	total := FrameHeaderSize + int(payloadLen)
	if len(buf) < total {
		return 0, nil, nil
	}
	return total, buf[FrameHeaderSize:total], nil
}
