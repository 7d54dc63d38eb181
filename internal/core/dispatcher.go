package core

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/akudrin/lobbywire/internal/proto"
)

// Sender delivers one pre-framed message to the connection owning handle.
// Delivery is best effort: implementations log and skip failed sends, and
// a send to a handle that is already gone is a no-op.
type Sender interface {
	Send(handle int, frame []byte)
}

// Dispatcher interprets decoded messages against the session and room
// tables, mutates them, and emits replies and room broadcasts through the
// Sender. It runs a per-connection state machine
// (unauthenticated → authenticated → in-room) and owns the disconnect
// cascade. Like the tables it is confined to the engine goroutine.
type Dispatcher struct {
	sessions *SessionTable
	rooms    *RoomTable
	sender   Sender
	log      *zerolog.Logger

	now func() time.Time
}

// NewDispatcher wires the dispatcher to its tables and output path.
func NewDispatcher(sessions *SessionTable, rooms *RoomTable, sender Sender, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		rooms:    rooms,
		sender:   sender,
		log:      logger,
		now:      time.Now,
	}
}

// HandleFrame processes one complete payload received from handle. A
// handle with no live session no-ops: the session may have been removed
// by the cascade while earlier frames from the same read were in flight.
func (d *Dispatcher) HandleFrame(handle int, payload []byte) {
	sess := d.sessions.ByHandle(handle)
	if sess == nil {
		return
	}

	var msg proto.Inbound
	if err := json.Unmarshal(payload, &msg); err != nil {
		// No reliable sender to reply to; diagnose and drop.
		d.log.Warn().Err(err).Int("handle", handle).Msg("undecodable payload dropped")
		return
	}
	if msg.Type == "" {
		d.log.Warn().Int("handle", handle).Msg("payload without type dropped")
		return
	}

	switch msg.Type {
	case proto.TypeLogin:
		d.handleLogin(sess, &msg)
	case proto.TypeRoomList:
		d.handleRoomList(sess)
	case proto.TypeRoomCreate:
		d.handleRoomCreate(sess, &msg)
	case proto.TypeRoomJoin:
		d.handleRoomJoin(sess, &msg)
	case proto.TypeRoomLeave:
		d.handleRoomLeave(sess)
	case proto.TypeChat:
		d.handleChat(sess, &msg)
	case proto.TypeHeartbeat:
		d.handleHeartbeat(sess)
	default:
		d.log.Debug().Str("type", msg.Type).Int("handle", handle).Msg("unknown message type")
		d.sendError(sess.Handle, replyUnknownType)
	}
}

// Disconnect runs the disconnect cascade for handle: leave the room with
// the usual notifications, destroy the room if it emptied, and release
// the session slot. Safe to call for handles that are already gone; the
// caller owns closing the underlying connection.
func (d *Dispatcher) Disconnect(handle int) {
	sess := d.sessions.ByHandle(handle)
	if sess == nil {
		return
	}

	d.log.Info().
		Int("handle", sess.Handle).
		Str("user", sess.Username).
		Str("addr", sess.Addr).
		Msg("disconnecting session")

	if sess.RoomID != NoRoom {
		roomID := sess.RoomID
		sess.RoomID = NoRoom

		// Peers never saw an unauthenticated session, so there is nobody
		// to name in a player_left for one.
		if sess.Username != "" {
			d.broadcastToRoom(roomID, proto.PlayerLeft{
				Type:     proto.TypePlayerLeft,
				Username: sess.Username,
			})
		}
		d.destroyIfEmpty(roomID)
	}

	d.sessions.Free(handle)
}

func (d *Dispatcher) handleLogin(sess *Session, msg *proto.Inbound) {
	name := truncate(msg.Username, MaxUsernameLen)
	if name == "" {
		d.sendError(sess.Handle, replyMissingUsername)
		return
	}

	// Re-login under the same name on the same connection is an accepted
	// no-op; only a different live connection blocks the name.
	if existing := d.sessions.ByUsername(name); existing != nil && existing.Handle != sess.Handle {
		d.log.Info().Str("user", name).Int("handle", sess.Handle).Msg("login rejected, name taken")
		d.send(sess.Handle, proto.LoginFail{Type: proto.TypeLoginFail, Reason: replyUsernameTaken})
		return
	}

	sess.Username = name
	d.log.Info().Str("user", sess.Username).Str("addr", sess.Addr).Int("handle", sess.Handle).Msg("login ok")
	d.send(sess.Handle, proto.LoginOK{Type: proto.TypeLoginOK, Username: sess.Username})
}

func (d *Dispatcher) handleRoomList(sess *Session) {
	rooms := d.rooms.List(d.sessions)
	if rooms == nil {
		rooms = []proto.RoomInfo{}
	}
	d.send(sess.Handle, proto.RoomListResult{Type: proto.TypeRoomListRes, Rooms: rooms})
}

func (d *Dispatcher) handleRoomCreate(sess *Session, msg *proto.Inbound) {
	if sess.RoomID != NoRoom {
		d.sendError(sess.Handle, replyAlreadyInRoom)
		return
	}

	maxPlayers := RoomPlayerCap
	if msg.MaxPlayers != nil {
		maxPlayers = *msg.MaxPlayers
	}

	room, err := d.rooms.Create(truncate(msg.Name, MaxRoomNameLen), maxPlayers, sess.Handle)
	if err != nil {
		d.sendError(sess.Handle, replyNoRoomSlots)
		return
	}

	// The creator joins its own room immediately.
	sess.RoomID = room.ID

	d.log.Info().
		Str("user", sess.Username).
		Int("room_id", room.ID).
		Str("room", room.Name).
		Int("max_players", room.MaxPlayers).
		Msg("room created")

	d.send(sess.Handle, proto.RoomCreated{Type: proto.TypeRoomCreated, RoomID: room.ID, Name: room.Name})
	d.broadcastPeers(room.ID)
}

func (d *Dispatcher) handleRoomJoin(sess *Session, msg *proto.Inbound) {
	if sess.RoomID != NoRoom {
		d.sendError(sess.Handle, replyAlreadyInRoom)
		return
	}
	if msg.RoomID == nil {
		d.sendError(sess.Handle, replyMissingRoomID)
		return
	}

	room := d.rooms.ByID(*msg.RoomID)
	if room == nil {
		d.sendError(sess.Handle, replyRoomNotFound)
		return
	}
	if d.sessions.CountInRoom(room.ID) >= room.MaxPlayers {
		d.sendError(sess.Handle, replyRoomFull)
		return
	}

	sess.RoomID = room.ID

	d.log.Info().
		Str("user", sess.Username).
		Int("room_id", room.ID).
		Str("room", room.Name).
		Msg("room joined")

	d.send(sess.Handle, proto.RoomJoined{Type: proto.TypeRoomJoined, RoomID: room.ID, Name: room.Name})

	// Existing occupants learn about the newcomer; the refreshed
	// membership snapshot then goes to everyone, newcomer included.
	for _, other := range d.sessions.InRoom(room.ID) {
		if other.Handle != sess.Handle {
			d.send(other.Handle, proto.PlayerJoined{
				Type:     proto.TypePlayerJoined,
				Username: sess.Username,
				IP:       sess.Addr,
			})
		}
	}
	d.broadcastPeers(room.ID)
}

func (d *Dispatcher) handleRoomLeave(sess *Session) {
	if sess.RoomID == NoRoom {
		d.sendError(sess.Handle, replyNotInRoom)
		return
	}

	roomID := sess.RoomID
	sess.RoomID = NoRoom

	d.log.Info().Str("user", sess.Username).Int("room_id", roomID).Msg("room left")

	d.send(sess.Handle, proto.RoomLeft{Type: proto.TypeRoomLeft})
	d.broadcastToRoom(roomID, proto.PlayerLeft{Type: proto.TypePlayerLeft, Username: sess.Username})
	d.destroyIfEmpty(roomID)
}

func (d *Dispatcher) handleChat(sess *Session, msg *proto.Inbound) {
	if sess.RoomID == NoRoom {
		d.sendError(sess.Handle, replyNotInRoom)
		return
	}
	if msg.Message == "" {
		d.sendError(sess.Handle, replyMissingMessage)
		return
	}

	d.broadcastToRoom(sess.RoomID, proto.ChatMsg{
		Type:    proto.TypeChatMsg,
		From:    sess.Username,
		Message: truncate(msg.Message, MaxChatLen),
	})
}

func (d *Dispatcher) handleHeartbeat(sess *Session) {
	sess.LastHeartbeat = d.now()
	d.send(sess.Handle, proto.HeartbeatAck{Type: proto.TypeHeartbeatAck})
}

// destroyIfEmpty destroys roomID if nobody occupies it any more,
// otherwise broadcasts the refreshed membership snapshot to the
// remaining occupants. Empty rooms are never left dangling.
func (d *Dispatcher) destroyIfEmpty(roomID int) {
	if d.sessions.CountInRoom(roomID) == 0 {
		d.log.Info().Int("room_id", roomID).Msg("room empty, destroying")
		d.rooms.Destroy(roomID)
		return
	}
	d.broadcastPeers(roomID)
}

// broadcastPeers sends the room_peers snapshot to every occupant of
// roomID, each occupant's own entry included.
func (d *Dispatcher) broadcastPeers(roomID int) {
	occupants := d.sessions.InRoom(roomID)
	peers := lo.Map(occupants, func(s *Session, _ int) proto.PeerInfo {
		return proto.PeerInfo{Username: s.Username, IP: s.Addr}
	})

	d.broadcastToRoom(roomID, proto.RoomPeers{Type: proto.TypeRoomPeers, Peers: peers})
}

func (d *Dispatcher) broadcastToRoom(roomID int, v any) {
	frame, err := proto.Marshal(v)
	if err != nil {
		d.log.Error().Err(err).Int("room_id", roomID).Msg("marshal broadcast")
		return
	}
	for _, occupant := range d.sessions.InRoom(roomID) {
		d.sender.Send(occupant.Handle, frame)
	}
}

func (d *Dispatcher) send(handle int, v any) {
	frame, err := proto.Marshal(v)
	if err != nil {
		d.log.Error().Err(err).Int("handle", handle).Msg("marshal reply")
		return
	}
	d.sender.Send(handle, frame)
}

func (d *Dispatcher) sendError(handle int, text string) {
	d.send(handle, proto.ErrorMsg{Type: proto.TypeError, Message: text})
}

// truncate caps s at max bytes, backing up over a split UTF-8 sequence so
// the result stays valid for JSON encoding.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
