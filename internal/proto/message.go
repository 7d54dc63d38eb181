package proto

import "encoding/json"

// Client → server message types.
const (
	TypeLogin      = "login"
	TypeRoomList   = "room_list"
	TypeRoomCreate = "room_create"
	TypeRoomJoin   = "room_join"
	TypeRoomLeave  = "room_leave"
	TypeChat       = "chat"
	TypeHeartbeat  = "heartbeat"
)

// Server → client message types.
const (
	TypeLoginOK      = "login_ok"
	TypeLoginFail    = "login_fail"
	TypeRoomListRes  = "room_list_result"
	TypeRoomCreated  = "room_created"
	TypeRoomJoined   = "room_joined"
	TypeRoomPeers    = "room_peers"
	TypeRoomLeft     = "room_left"
	TypeChatMsg      = "chat_msg"
	TypePlayerJoined = "player_joined"
	TypePlayerLeft   = "player_left"
	TypeError        = "error"
	TypeHeartbeatAck = "heartbeat_ack"
)

// Inbound is the flat envelope for messages coming from a client. Every
// message carries a "type" discriminator; the remaining fields are
// type-specific and left zero for types that do not use them.
type Inbound struct {
	Type       string `json:"type"`
	Username   string `json:"username,omitempty"`
	Name       string `json:"name,omitempty"`
	MaxPlayers *int   `json:"max_players,omitempty"`
	RoomID     *int   `json:"room_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// RoomInfo is one entry of a room_list_result message.
type RoomInfo struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Players int    `json:"players"`
	Max     int    `json:"max"`
}

// PeerInfo is one entry of a room_peers snapshot. The address is handed to
// peers so they can establish their own game connection.
type PeerInfo struct {
	Username string `json:"username"`
	IP       string `json:"ip"`
}

// LoginOK confirms a successful login.
type LoginOK struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// LoginFail rejects a login attempt.
type LoginFail struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// RoomListResult is the snapshot reply to room_list.
type RoomListResult struct {
	Type  string     `json:"type"`
	Rooms []RoomInfo `json:"rooms"`
}

// RoomCreated confirms room creation to the creator.
type RoomCreated struct {
	Type   string `json:"type"`
	RoomID int    `json:"room_id"`
	Name   string `json:"name"`
}

// RoomJoined confirms a join to the joiner.
type RoomJoined struct {
	Type   string `json:"type"`
	RoomID int    `json:"room_id"`
	Name   string `json:"name"`
}

// RoomPeers is the membership snapshot broadcast to every occupant,
// including the recipient itself; filtering out self is a client concern.
type RoomPeers struct {
	Type  string     `json:"type"`
	Peers []PeerInfo `json:"peers"`
}

// RoomLeft confirms a leave to the leaver.
type RoomLeft struct {
	Type string `json:"type"`
}

// ChatMsg relays a chat line to every occupant of the sender's room.
type ChatMsg struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// PlayerJoined notifies existing occupants about a new occupant.
type PlayerJoined struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IP       string `json:"ip"`
}

// PlayerLeft notifies remaining occupants about a departure.
type PlayerLeft struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// ErrorMsg is the single application-error reply shape.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// HeartbeatAck answers a heartbeat.
type HeartbeatAck struct {
	Type string `json:"type"`
}

// Marshal serializes an outbound message and wraps it in a wire frame.
// Marshalling can only fail on types that are not JSON-encodable, which
// none of the proto types are, so the error is surfaced as-is for the
// caller to log.
func Marshal(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(payload), nil
}
