package core

import "errors"

// Pool exhaustion errors. Both map to an explicit failure reply with no
// state mutated; neither drops the connection.
var (
	ErrNoSessionSlots = errors.New("no session slots available")
	ErrNoRoomSlots    = errors.New("no room slots available")
)

// Reply texts sent to clients. These are part of the wire contract, so
// they stay verbatim; the peer application pattern-matches some of them.
const (
	replyMissingUsername = "missing or empty username"
	replyUsernameTaken   = "username already taken"
	replyAlreadyInRoom   = "already in a room"
	replyNoRoomSlots     = "no room slots available"
	replyMissingRoomID   = "missing room_id"
	replyRoomNotFound    = "room not found"
	replyRoomFull        = "room is full"
	replyNotInRoom       = "not in a room"
	replyMissingMessage  = "missing message"
	replyUnknownType     = "unknown message type"
)
