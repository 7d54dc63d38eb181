package tcp

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akudrin/lobbywire/internal/config"
	"github.com/akudrin/lobbywire/internal/log"
	"github.com/akudrin/lobbywire/internal/proto"
)

func startEngine(t *testing.T, mutate func(*config.Config)) *Engine {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.SweepInterval = 50 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	e := NewEngine(cfg, log.Nop())
	require.NoError(t, e.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go e.Run(ctx)

	return e
}

// testClient speaks the framed protocol against a live engine.
type testClient struct {
	t   *testing.T
	nc  net.Conn
	buf *proto.Buffer
}

func dialEngine(t *testing.T, e *Engine) *testClient {
	t.Helper()

	nc, err := net.Dial("tcp", e.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close() })

	return &testClient{t: t, nc: nc, buf: proto.NewBuffer(0)}
}

func (c *testClient) send(v any) {
	c.t.Helper()

	frame, err := proto.Marshal(v)
	require.NoError(c.t, err)
	_, err = c.nc.Write(frame)
	require.NoError(c.t, err)
}

// recv returns the next complete message, waiting up to the deadline.
func (c *testClient) recv(deadline time.Duration) (map[string]any, error) {
	c.t.Helper()

	require.NoError(c.t, c.nc.SetReadDeadline(time.Now().Add(deadline)))
	chunk := make([]byte, 4096)
	for {
		payload, err := c.buf.Next()
		require.NoError(c.t, err)
		if payload != nil {
			var msg map[string]any
			require.NoError(c.t, json.Unmarshal(payload, &msg))
			return msg, nil
		}

		n, err := c.nc.Read(chunk)
		if n > 0 {
			require.NoError(c.t, c.buf.Write(chunk[:n]))
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

// waitFor reads messages until one of the given type arrives.
func (c *testClient) waitFor(typ string) map[string]any {
	c.t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := c.recv(time.Until(deadline))
		require.NoErrorf(c.t, err, "connection dropped while waiting for %q", typ)
		if msg["type"] == typ {
			return msg
		}
	}
	c.t.Fatalf("expected message type %q not received", typ)
	return nil
}

// expectClosed asserts that the server drops the connection, draining
// any messages still in flight. A read timeout means the connection is
// still open and fails the test.
func (c *testClient) expectClosed(deadline time.Duration) {
	c.t.Helper()

	end := time.Now().Add(deadline)
	for {
		_, err := c.recv(time.Until(end))
		if err == nil {
			continue
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			c.t.Fatal("connection still open after deadline")
		}
		return
	}
}

func (c *testClient) login(name string) {
	c.t.Helper()

	c.send(proto.Inbound{Type: proto.TypeLogin, Username: name})
	c.waitFor(proto.TypeLoginOK)
}

func TestWireLoginUniqueness(t *testing.T) {
	e := startEngine(t, nil)

	alice := dialEngine(t, e)
	alice.send(proto.Inbound{Type: proto.TypeLogin, Username: "alice"})
	ok := alice.waitFor(proto.TypeLoginOK)
	assert.Equal(t, "alice", ok["username"])

	impostor := dialEngine(t, e)
	impostor.send(proto.Inbound{Type: proto.TypeLogin, Username: "alice"})
	fail := impostor.waitFor(proto.TypeLoginFail)
	assert.Equal(t, "username already taken", fail["reason"])
}

func TestWireRoomLifecycle(t *testing.T) {
	e := startEngine(t, nil)

	alice := dialEngine(t, e)
	alice.login("alice")
	bob := dialEngine(t, e)
	bob.login("bob")
	carol := dialEngine(t, e)
	carol.login("carol")

	maxPlayers := 2
	alice.send(proto.Inbound{Type: proto.TypeRoomCreate, Name: "Arena", MaxPlayers: &maxPlayers})
	created := alice.waitFor(proto.TypeRoomCreated)
	roomID := int(created["room_id"].(float64))
	alice.waitFor(proto.TypeRoomPeers)

	bob.send(proto.Inbound{Type: proto.TypeRoomJoin, RoomID: &roomID})
	bob.waitFor(proto.TypeRoomJoined)

	joinNote := alice.waitFor(proto.TypePlayerJoined)
	assert.Equal(t, "bob", joinNote["username"])

	for _, c := range []*testClient{alice, bob} {
		snapshot := c.waitFor(proto.TypeRoomPeers)
		entries := snapshot["peers"].([]any)
		require.Len(t, entries, 2)
	}

	// Third join bounces off the full room and occupancy stays put.
	carol.send(proto.Inbound{Type: proto.TypeRoomJoin, RoomID: &roomID})
	errMsg := carol.waitFor(proto.TypeError)
	assert.Equal(t, "room is full", errMsg["message"])

	carol.send(proto.Inbound{Type: proto.TypeRoomList})
	list := carol.waitFor(proto.TypeRoomListRes)
	rooms := list["rooms"].([]any)
	require.Len(t, rooms, 1)
	assert.EqualValues(t, 2, rooms[0].(map[string]any)["players"])

	// Chat reaches both occupants, the sender included, and nobody else.
	alice.send(proto.Inbound{Type: proto.TypeChat, Message: "hi"})
	for _, c := range []*testClient{alice, bob} {
		msg := c.waitFor(proto.TypeChatMsg)
		assert.Equal(t, "alice", msg["from"])
		assert.Equal(t, "hi", msg["message"])
	}
	_, err := carol.recv(200 * time.Millisecond)
	assert.Error(t, err, "outsider must not receive room chat")
}

func TestWireDisconnectCascade(t *testing.T) {
	e := startEngine(t, nil)

	alice := dialEngine(t, e)
	alice.login("alice")
	bob := dialEngine(t, e)
	bob.login("bob")

	alice.send(proto.Inbound{Type: proto.TypeRoomCreate, Name: "Arena"})
	created := alice.waitFor(proto.TypeRoomCreated)
	roomID := int(created["room_id"].(float64))
	bob.send(proto.Inbound{Type: proto.TypeRoomJoin, RoomID: &roomID})
	bob.waitFor(proto.TypeRoomJoined)

	// Bob vanishes without a room_leave.
	bob.nc.Close()

	left := alice.waitFor(proto.TypePlayerLeft)
	assert.Equal(t, "bob", left["username"])
	snapshot := alice.waitFor(proto.TypeRoomPeers)
	require.Len(t, snapshot["peers"].([]any), 1)

	// When alice goes too, the room must disappear from listings.
	alice.nc.Close()

	carol := dialEngine(t, e)
	carol.login("carol")
	deadline := time.Now().Add(3 * time.Second)
	for {
		carol.send(proto.Inbound{Type: proto.TypeRoomList})
		list := carol.waitFor(proto.TypeRoomListRes)
		if len(list["rooms"].([]any)) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("empty room still listed after its last occupant left")
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestWireHeartbeatKeepsSessionAlive(t *testing.T) {
	e := startEngine(t, func(cfg *config.Config) {
		cfg.HeartbeatTimeout = 400 * time.Millisecond
	})

	alice := dialEngine(t, e)
	alice.login("alice")

	// Heartbeats at half the timeout keep the session alive well past it.
	for i := 0; i < 4; i++ {
		time.Sleep(200 * time.Millisecond)
		alice.send(proto.Inbound{Type: proto.TypeHeartbeat})
		alice.waitFor(proto.TypeHeartbeatAck)
	}

	idle := dialEngine(t, e)
	idle.login("idle")
	idle.expectClosed(2 * time.Second)
}

func TestWireMaxFramePipelinedDelivery(t *testing.T) {
	e := startEngine(t, nil)

	c := dialEngine(t, e)
	c.login("alice")

	// A maximum-size heartbeat padded to exactly the payload cap, with a
	// plain heartbeat pipelined right behind it in the same write. Both
	// must be answered; neither may be mistaken for a protocol violation.
	prefix := []byte(`{"type":"heartbeat","username":"`)
	suffix := []byte(`"}`)
	padded := make([]byte, 0, proto.MaxPayloadSize)
	padded = append(padded, prefix...)
	padded = append(padded, bytes.Repeat([]byte("a"), proto.MaxPayloadSize-len(prefix)-len(suffix))...)
	padded = append(padded, suffix...)
	require.Len(t, padded, proto.MaxPayloadSize)

	wire := append(proto.EncodeFrame(padded), proto.EncodeFrame([]byte(`{"type":"heartbeat"}`))...)
	_, err := c.nc.Write(wire)
	require.NoError(t, err)

	c.waitFor(proto.TypeHeartbeatAck)
	c.waitFor(proto.TypeHeartbeatAck)
}

func TestWireOversizedFrameDisconnects(t *testing.T) {
	e := startEngine(t, nil)

	c := dialEngine(t, e)
	header := make([]byte, proto.FrameHeaderSize)
	binary.BigEndian.PutUint32(header, proto.MaxPayloadSize+1)
	_, err := c.nc.Write(header)
	require.NoError(t, err)

	c.expectClosed(2 * time.Second)
}

func TestWireSessionPoolRejectsExtraConnections(t *testing.T) {
	e := startEngine(t, func(cfg *config.Config) {
		cfg.MaxSessions = 1
	})

	first := dialEngine(t, e)
	first.login("alice")

	second := dialEngine(t, e)
	second.expectClosed(2 * time.Second)

	// The first session is unaffected.
	first.send(proto.Inbound{Type: proto.TypeHeartbeat})
	first.waitFor(proto.TypeHeartbeatAck)
}

func TestWireSnapshot(t *testing.T) {
	e := startEngine(t, nil)

	alice := dialEngine(t, e)
	alice.login("alice")
	alice.send(proto.Inbound{Type: proto.TypeRoomCreate, Name: "Arena"})
	alice.waitFor(proto.TypeRoomCreated)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)

	require.Len(t, snap.Rooms, 1)
	assert.Equal(t, "Arena", snap.Rooms[0].Name)
	assert.Equal(t, 1, snap.Rooms[0].Players)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, "alice", snap.Sessions[0].Username)
}
