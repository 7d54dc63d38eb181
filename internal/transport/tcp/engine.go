package tcp

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/akudrin/lobbywire/internal/config"
	"github.com/akudrin/lobbywire/internal/core"
	"github.com/akudrin/lobbywire/internal/proto"
	"github.com/akudrin/lobbywire/internal/utils"
)

const sendTimeout = 5 * time.Second

type eventKind int

const (
	evAccept eventKind = iota
	evFrame
	evClose
)

// event is the single message shape flowing into the engine loop. Accept
// events carry a fresh net.Conn; frame and close events reference an
// existing session by handle.
type event struct {
	kind    eventKind
	netConn net.Conn
	handle  int
	payload []byte
	reason  string
}

// peerConn pairs a socket with the opaque id used to tag its log lines.
type peerConn struct {
	nc net.Conn
	id string
}

// SessionStatus is one row of an ops snapshot.
type SessionStatus struct {
	Handle   int     `json:"handle"`
	Username string  `json:"username"`
	Addr     string  `json:"addr"`
	RoomID   int     `json:"room_id"`
	IdleSecs float64 `json:"idle_seconds"`
}

// Snapshot is a point-in-time copy of both registries, taken inside the
// engine goroutine so it is always internally consistent.
type Snapshot struct {
	Rooms    []proto.RoomInfo `json:"rooms"`
	Sessions []SessionStatus  `json:"sessions"`
}

// Engine owns the listener, all connections, and both registries. Every
// registry mutation happens on the goroutine running Run: connection
// readers and the acceptor only post events into the engine channel, which
// keeps per-connection ordering (each reader posts sequentially) without
// any locking around the tables.
type Engine struct {
	cfg config.Config
	log *zerolog.Logger

	sessions   *core.SessionTable
	rooms      *core.RoomTable
	dispatcher *core.Dispatcher

	listener  net.Listener
	events    chan event
	conns     map[int]peerConn
	snapshots chan chan Snapshot
}

// NewEngine builds an engine with fresh registries sized per cfg.
func NewEngine(cfg config.Config, logger *zerolog.Logger) *Engine {
	sessions := core.NewSessionTable(cfg.MaxSessions)
	rooms := core.NewRoomTable(cfg.MaxRooms)

	e := &Engine{
		cfg:       cfg,
		log:       logger,
		sessions:  sessions,
		rooms:     rooms,
		events:    make(chan event, 64),
		conns:     make(map[int]peerConn),
		snapshots: make(chan chan Snapshot),
	}
	e.dispatcher = core.NewDispatcher(sessions, rooms, e, logger)
	return e
}

// Listen binds the TCP listener. Split from Run so callers can learn the
// bound address (tests listen on port 0) before the loop starts.
func (e *Engine) Listen() error {
	ln, err := net.Listen("tcp", e.cfg.Addr)
	if err != nil {
		return err
	}
	e.listener = ln
	e.log.Info().Str("addr", ln.Addr().String()).Msg("lobby listening")
	return nil
}

// Addr returns the bound listener address. Only valid after Listen.
func (e *Engine) Addr() net.Addr {
	return e.listener.Addr()
}

// Run accepts connections and processes events until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.listener == nil {
		if err := e.Listen(); err != nil {
			return err
		}
	}

	go e.acceptLoop(ctx)

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil

		case ev := <-e.events:
			switch ev.kind {
			case evAccept:
				e.onAccept(ctx, ev.netConn)
			case evFrame:
				e.dispatcher.HandleFrame(ev.handle, ev.payload)
			case evClose:
				e.closeSession(ev.handle, ev.reason)
			}

		case <-ticker.C:
			e.sweepStale()

		case reply := <-e.snapshots:
			reply <- e.snapshot()
		}
	}
}

// Snapshot asks the engine goroutine for a consistent registry copy.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case e.snapshots <- reply:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Send implements core.Sender. Called only from the engine goroutine.
// Sends are best effort: a slow or broken peer costs one write deadline
// and a log line, never the loop.
func (e *Engine) Send(handle int, frame []byte) {
	pc, ok := e.conns[handle]
	if !ok {
		return
	}
	if err := pc.nc.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		e.log.Warn().Err(err).Str("conn", pc.id).Msg("set write deadline")
		return
	}
	if _, err := pc.nc.Write(frame); err != nil {
		e.log.Warn().Err(err).Str("conn", pc.id).Msg("send failed, skipping")
	}
}

func (e *Engine) acceptLoop(ctx context.Context) {
	for {
		nc, err := e.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			e.log.Warn().Err(err).Msg("accept error")
			continue
		}
		select {
		case e.events <- event{kind: evAccept, netConn: nc}:
		case <-ctx.Done():
			nc.Close()
			return
		}
	}
}

func (e *Engine) onAccept(ctx context.Context, nc net.Conn) {
	addr := remoteHost(nc)

	sess, err := e.sessions.Alloc(addr, time.Now())
	if err != nil {
		// Pool exhausted: the connection is turned away on the spot.
		e.log.Warn().Str("addr", addr).Msg("no session slots available, rejecting connection")
		nc.Close()
		return
	}

	pc := peerConn{nc: nc, id: utils.NewID()}
	e.conns[sess.Handle] = pc
	e.log.Info().Str("addr", addr).Str("conn", pc.id).Int("handle", sess.Handle).Msg("new connection")

	go e.readLoop(ctx, sess.Handle, nc)
}

// readLoop runs one goroutine per connection: accumulate bytes, extract
// complete frames, post them in order. It owns no registry state. Each
// read is capped at the buffer's free space so a near-max frame pipelined
// with more data completes instead of tripping the overflow guard; zero
// free space after draining means no decodable frame can ever appear.
func (e *Engine) readLoop(ctx context.Context, handle int, nc net.Conn) {
	buf := proto.NewBuffer(0)
	chunk := make([]byte, 4096)

	post := func(ev event) bool {
		select {
		case e.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		space := buf.Free()
		if space == 0 {
			post(event{kind: evClose, handle: handle, reason: proto.ErrBufferOverflow.Error()})
			return
		}
		if space > len(chunk) {
			space = len(chunk)
		}

		n, err := nc.Read(chunk[:space])
		if n > 0 {
			if werr := buf.Write(chunk[:n]); werr != nil {
				post(event{kind: evClose, handle: handle, reason: werr.Error()})
				return
			}
			for {
				payload, derr := buf.Next()
				if derr != nil {
					post(event{kind: evClose, handle: handle, reason: derr.Error()})
					return
				}
				if payload == nil {
					break
				}
				if !post(event{kind: evFrame, handle: handle, payload: payload}) {
					return
				}
			}
		}
		if err != nil {
			post(event{kind: evClose, handle: handle, reason: err.Error()})
			return
		}
	}
}

// closeSession tears one connection down: close the socket, then run the
// registry cascade. Events for handles that are already gone no-op, so a
// read error racing a heartbeat sweep is harmless.
func (e *Engine) closeSession(handle int, reason string) {
	pc, ok := e.conns[handle]
	if !ok {
		return
	}
	delete(e.conns, handle)
	pc.nc.Close()

	e.log.Info().Str("conn", pc.id).Str("reason", reason).Msg("connection closed")
	e.dispatcher.Disconnect(handle)
}

func (e *Engine) sweepStale() {
	for _, handle := range e.sessions.Stale(time.Now(), e.cfg.HeartbeatTimeout) {
		e.log.Warn().Int("handle", handle).Msg("heartbeat timeout")
		e.closeSession(handle, "heartbeat timeout")
	}
}

func (e *Engine) snapshot() Snapshot {
	now := time.Now()

	rooms := e.rooms.List(e.sessions)
	if rooms == nil {
		rooms = []proto.RoomInfo{}
	}

	sessions := lo.Map(e.sessions.Active(), func(s *core.Session, _ int) SessionStatus {
		return SessionStatus{
			Handle:   s.Handle,
			Username: s.Username,
			Addr:     s.Addr,
			RoomID:   s.RoomID,
			IdleSecs: now.Sub(s.LastHeartbeat).Seconds(),
		}
	})
	if sessions == nil {
		sessions = []SessionStatus{}
	}

	return Snapshot{Rooms: rooms, Sessions: sessions}
}

func (e *Engine) shutdown() {
	e.log.Info().Msg("engine shutting down")
	e.listener.Close()
	for handle, pc := range e.conns {
		pc.nc.Close()
		delete(e.conns, handle)
	}
}

func remoteHost(nc net.Conn) string {
	addr := nc.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
