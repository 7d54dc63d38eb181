package core

import "time"

// Pool bounds and field limits, shared with the wire protocol peer.
const (
	DefaultMaxSessions = 256
	DefaultMaxRooms    = 64
	RoomPlayerCap      = 16

	MaxUsernameLen = 31
	MaxRoomNameLen = 63
	MaxChatLen     = 255
)

// NoRoom is the RoomID of a session that is not in any room.
const NoRoom = -1

// Session is the server-side record of one connected, possibly
// authenticated peer. Username stays empty until login succeeds; RoomID
// is NoRoom unless the session occupies a live room.
type Session struct {
	Handle        int
	Addr          string
	Username      string
	RoomID        int
	LastHeartbeat time.Time

	active bool
}

// SessionTable is a fixed-capacity pool of session records. Handles are
// assigned monotonically and never reused, so a stale handle can never
// alias a newer session. All lookups are linear scans; the pool is small
// by construction. Not safe for concurrent use: a single engine goroutine
// owns it.
type SessionTable struct {
	slots      []Session
	nextHandle int
}

// NewSessionTable builds a pool with the given capacity.
func NewSessionTable(capacity int) *SessionTable {
	if capacity <= 0 {
		capacity = DefaultMaxSessions
	}
	return &SessionTable{
		slots:      make([]Session, capacity),
		nextHandle: 1,
	}
}

// Alloc claims a free slot for a new connection. The record starts
// unauthenticated, roomless, with its heartbeat clock set to now.
func (t *SessionTable) Alloc(addr string, now time.Time) (*Session, error) {
	for i := range t.slots {
		if t.slots[i].active {
			continue
		}
		t.slots[i] = Session{
			Handle:        t.nextHandle,
			Addr:          addr,
			RoomID:        NoRoom,
			LastHeartbeat: now,
			active:        true,
		}
		t.nextHandle++
		return &t.slots[i], nil
	}
	return nil, ErrNoSessionSlots
}

// Free releases the slot owned by handle back to the pool. Unknown
// handles no-op so the disconnect cascade stays idempotent.
func (t *SessionTable) Free(handle int) {
	for i := range t.slots {
		if t.slots[i].active && t.slots[i].Handle == handle {
			t.slots[i] = Session{}
			return
		}
	}
}

// ByHandle returns the active session with the given handle, or nil.
func (t *SessionTable) ByHandle(handle int) *Session {
	for i := range t.slots {
		if t.slots[i].active && t.slots[i].Handle == handle {
			return &t.slots[i]
		}
	}
	return nil
}

// ByUsername returns the first active session bound to name (exact,
// case-sensitive), or nil. Unauthenticated sessions never match.
func (t *SessionTable) ByUsername(name string) *Session {
	if name == "" {
		return nil
	}
	for i := range t.slots {
		if t.slots[i].active && t.slots[i].Username == name {
			return &t.slots[i]
		}
	}
	return nil
}

// CountInRoom recomputes the occupancy of a room. Occupancy is never
// cached anywhere; this scan is the single source of truth.
func (t *SessionTable) CountInRoom(roomID int) int {
	n := 0
	for i := range t.slots {
		if t.slots[i].active && t.slots[i].RoomID == roomID {
			n++
		}
	}
	return n
}

// InRoom returns the occupants of a room in slot order.
func (t *SessionTable) InRoom(roomID int) []*Session {
	var occupants []*Session
	for i := range t.slots {
		if t.slots[i].active && t.slots[i].RoomID == roomID {
			occupants = append(occupants, &t.slots[i])
		}
	}
	return occupants
}

// Active returns every connected session in slot order.
func (t *SessionTable) Active() []*Session {
	var sessions []*Session
	for i := range t.slots {
		if t.slots[i].active {
			sessions = append(sessions, &t.slots[i])
		}
	}
	return sessions
}

// Stale returns the handles of sessions whose last heartbeat is older
// than timeout at the given instant.
func (t *SessionTable) Stale(now time.Time, timeout time.Duration) []int {
	var handles []int
	for i := range t.slots {
		if t.slots[i].active && now.Sub(t.slots[i].LastHeartbeat) > timeout {
			handles = append(handles, t.slots[i].Handle)
		}
	}
	return handles
}
