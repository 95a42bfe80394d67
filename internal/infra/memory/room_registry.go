package memory

import (
	"sync"

	"trivia-room-service/internal/app"
)

// RoomRegistry is an in-memory implementation of app.RoomRegistry.
type RoomRegistry struct {
	mu     sync.RWMutex
	rooms  map[string]*app.Room
	byCode map[string]string
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]*app.Room),
		byCode: make(map[string]string),
	}
}

func (r *RoomRegistry) GetByCode(code string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, false
	}
	room, ok := r.rooms[id]
	return room, ok
}

func (r *RoomRegistry) Get(roomID string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

func (r *RoomRegistry) GetOrInsert(room *app.Room) (*app.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rooms[room.ID()]; ok {
		return existing, false
	}
	r.rooms[room.ID()] = room
	r.byCode[room.Code()] = room.ID()
	return room, true
}

func (r *RoomRegistry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(r.rooms, roomID)
	if r.byCode[room.Code()] == roomID {
		delete(r.byCode, room.Code())
	}
}

func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// All returns the live rooms in no particular order.
func (r *RoomRegistry) All() []*app.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*app.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}
