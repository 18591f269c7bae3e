package server

import "errors"

var (
	// ErrRoomAccessDenied is returned when an identity may not join a private room.
	ErrRoomAccessDenied = errors.New("room access denied")
	// ErrNotInRoom is returned by Leave for rooms the connection never joined.
	ErrNotInRoom = errors.New("not a member of room")
)

// RoomIndex maps rooms to joined connections.
type RoomIndex struct {
	reg *Registry
}

// NewRoomIndex returns the room view over reg.
func NewRoomIndex(reg *Registry) *RoomIndex {
	return &RoomIndex{reg: reg}
}

// Join adds c to room if its identity is allowed in. Joining a room twice is a no-op.
func (ri *RoomIndex) Join(c *Connection, room string) error {
	r := ri.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	if !c.isLive() {
		return ErrConnectionClosed
	}
	if !roomAllowed(c.Identity(), room) {
		return ErrRoomAccessDenied
	}
	c.rooms[room] = struct{}{}
	r.rooms.add(room, c)
	return nil
}

// Leave removes c from room.
func (ri *RoomIndex) Leave(c *Connection, room string) error {
	r := ri.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := c.rooms[room]; !ok {
		return ErrNotInRoom
	}
	delete(c.rooms, room)
	r.rooms.remove(room, c)
	return nil
}

// Members returns the number of connections in room.
func (ri *RoomIndex) Members(room string) int {
	ri.reg.mu.RLock()
	defer ri.reg.mu.RUnlock()
	return len(ri.reg.rooms[room])
}
