package core

import (
	"github.com/samber/lo"

	"github.com/akudrin/lobbywire/internal/proto"
)

// Room is a capacity-bounded grouping of sessions. ID 0 marks an unused
// slot; live ids are assigned monotonically from 1 and never reused while
// the process runs. CreatorHandle is informational only; the creator has
// no special privilege after creation.
type Room struct {
	ID            int
	Name          string
	MaxPlayers    int
	CreatorHandle int
}

// RoomTable is a fixed-capacity pool of room records, owned by the same
// engine goroutine as the SessionTable.
type RoomTable struct {
	slots  []Room
	nextID int
}

// NewRoomTable builds a pool with the given capacity.
func NewRoomTable(capacity int) *RoomTable {
	if capacity <= 0 {
		capacity = DefaultMaxRooms
	}
	return &RoomTable{
		slots:  make([]Room, capacity),
		nextID: 1,
	}
}

// Create claims a free slot for a new room. maxPlayers is clamped into
// [1, RoomPlayerCap] and an empty name falls back to "Unnamed", matching
// what clients have always been shown.
func (t *RoomTable) Create(name string, maxPlayers, creatorHandle int) (*Room, error) {
	if name == "" {
		name = "Unnamed"
	}
	if maxPlayers < 1 {
		maxPlayers = 1
	}
	if maxPlayers > RoomPlayerCap {
		maxPlayers = RoomPlayerCap
	}

	for i := range t.slots {
		if t.slots[i].ID != 0 {
			continue
		}
		t.slots[i] = Room{
			ID:            t.nextID,
			Name:          name,
			MaxPlayers:    maxPlayers,
			CreatorHandle: creatorHandle,
		}
		t.nextID++
		return &t.slots[i], nil
	}
	return nil, ErrNoRoomSlots
}

// ByID returns the room with the given id, or nil.
func (t *RoomTable) ByID(id int) *Room {
	if id == 0 {
		return nil
	}
	for i := range t.slots {
		if t.slots[i].ID == id {
			return &t.slots[i]
		}
	}
	return nil
}

// Destroy resets the room's slot to the unused sentinel.
func (t *RoomTable) Destroy(id int) {
	for i := range t.slots {
		if t.slots[i].ID == id {
			t.slots[i] = Room{}
			return
		}
	}
}

// List snapshots every active room with its occupancy recomputed from the
// session table at call time.
func (t *RoomTable) List(sessions *SessionTable) []proto.RoomInfo {
	active := lo.Filter(t.slots, func(r Room, _ int) bool { return r.ID != 0 })
	return lo.Map(active, func(r Room, _ int) proto.RoomInfo {
		return proto.RoomInfo{
			ID:      r.ID,
			Name:    r.Name,
			Players: sessions.CountInRoom(r.ID),
			Max:     r.MaxPlayers,
		}
	})
}
