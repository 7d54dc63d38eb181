package proto

import "errors"

// ErrBufferOverflow reports that the accumulator is completely full yet
// holds no decodable frame. One maximum-size frame always fits, so this
// is a protocol violation and the connection must be dropped.
var ErrBufferOverflow = errors.New("receive buffer overflow without a complete frame")

// Buffer accumulates raw bytes from a connection until complete frames can
// be extracted. It owns the accumulate/extract/compact cycle so that the
// server engine and the client share one well-tested primitive. A Buffer
// is not safe for concurrent use; each connection reader owns its own.
type Buffer struct {
	data []byte
	max  int
}

// NewBuffer returns a buffer that holds at most max bytes of not-yet-framed
// input. One maximum-size frame must fit, so max is raised to header+cap
// when smaller.
func NewBuffer(max int) *Buffer {
	if max < FrameHeaderSize+MaxPayloadSize {
		max = FrameHeaderSize + MaxPayloadSize
	}
	return &Buffer{max: max}
}

// Write appends b to the accumulator. Readers size their reads by Free so
// a burst larger than the remaining capacity stays on the socket until
// frames are drained; data beyond capacity is rejected with
// ErrBufferOverflow.
func (buf *Buffer) Write(b []byte) error {
	if len(buf.data)+len(b) > buf.max {
		return ErrBufferOverflow
	}
	buf.data = append(buf.data, b...)
	return nil
}

// Free reports the remaining capacity. A reader seeing zero free space
// after draining every complete frame is looking at a protocol violation.
func (buf *Buffer) Free() int {
	return buf.max - len(buf.data)
}

// Next extracts the next complete frame, compacting the accumulator past
// it. It returns (nil, nil) when no complete frame is buffered yet. The
// returned payload is a copy and stays valid across further Buffer calls.
func (buf *Buffer) Next() ([]byte, error) {
	consumed, payload, err := DecodeFrame(buf.data)
	if err != nil {
		return nil, err
	}
	if consumed == 0 {
		return nil, nil
	}
	out := make([]byte, len(payload))
	copy(out, payload)

	remaining := copy(buf.data, buf.data[consumed:])
	buf.data = buf.data[:remaining]
	return out, nil
}

// Len reports the number of buffered, not-yet-framed bytes.
func (buf *Buffer) Len() int {
	return len(buf.data)
}
