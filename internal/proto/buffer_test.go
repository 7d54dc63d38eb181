package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferDribbledBytes(t *testing.T) {
	buf := NewBuffer(0)
	frame := EncodeFrame([]byte(`{"type":"chat","message":"hi"}`))

	// Feed one byte at a time; the frame must pop out only once complete.
	for i, b := range frame {
		payload, err := buf.Next()
		require.NoError(t, err)
		require.Nil(t, payload, "frame surfaced after %d of %d bytes", i, len(frame))

		require.NoError(t, buf.Write([]byte{b}))
	}

	payload, err := buf.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"chat","message":"hi"}`, string(payload))
	assert.Zero(t, buf.Len())
}

func TestBufferCoalescedFrames(t *testing.T) {
	buf := NewBuffer(0)
	var wire []byte
	wire = append(wire, EncodeFrame([]byte(`{"type":"heartbeat"}`))...)
	wire = append(wire, EncodeFrame([]byte(`{"type":"room_list"}`))...)
	// Trailing partial frame stays buffered.
	tail := EncodeFrame([]byte(`{"type":"room_leave"}`))
	wire = append(wire, tail[:5]...)

	require.NoError(t, buf.Write(wire))

	payload, err := buf.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"heartbeat"}`, string(payload))

	payload, err = buf.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"room_list"}`, string(payload))

	payload, err = buf.Next()
	require.NoError(t, err)
	assert.Nil(t, payload)
	assert.Equal(t, 5, buf.Len())

	require.NoError(t, buf.Write(tail[5:]))
	payload, err = buf.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"room_leave"}`, string(payload))
}

func TestBufferPipelinedMaxFrame(t *testing.T) {
	buf := NewBuffer(0)

	var wire []byte
	wire = append(wire, EncodeFrame(make([]byte, MaxPayloadSize))...)
	wire = append(wire, EncodeFrame([]byte(`{"type":"heartbeat"}`))...)

	// Feed the stream the way a connection reader does: each write bounded
	// by the free space, draining complete frames after every write. The
	// near-max frame must complete instead of counting as overflow.
	var got [][]byte
	for off := 0; off < len(wire); {
		space := buf.Free()
		require.Positive(t, space, "no free space with %d bytes still in flight", len(wire)-off)
		if space > 4096 {
			space = 4096
		}
		end := off + space
		if end > len(wire) {
			end = len(wire)
		}
		require.NoError(t, buf.Write(wire[off:end]))
		off = end

		for {
			payload, err := buf.Next()
			require.NoError(t, err)
			if payload == nil {
				break
			}
			got = append(got, payload)
		}
	}

	require.Len(t, got, 2)
	assert.Len(t, got[0], MaxPayloadSize)
	assert.Equal(t, `{"type":"heartbeat"}`, string(got[1]))
	assert.Zero(t, buf.Len())
}

func TestBufferOverflow(t *testing.T) {
	buf := NewBuffer(0)

	// Fill to the limit without ever completing a frame.
	junk := make([]byte, FrameHeaderSize+MaxPayloadSize)
	junk[0] = 0xff // declared length far above the cap
	require.NoError(t, buf.Write(junk))

	err := buf.Write([]byte{0x00})
	assert.ErrorIs(t, err, ErrBufferOverflow)
}

func TestBufferSurfacesFrameViolation(t *testing.T) {
	buf := NewBuffer(0)
	require.NoError(t, buf.Write([]byte{0xff, 0xff, 0xff, 0xff}))

	_, err := buf.Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
