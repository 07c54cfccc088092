// internal/relay/room_store.go
package relay

import (
	"sort"
	"sync"
)

// RoomStore indexes live rooms by code. It guards the map only; each room
// serializes its own state with Room.Mu.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRoomStore returns an empty store.
func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*Room)}
}

// Create draws codes from gen until one is free, then registers the room built for it.
func (s *RoomStore) Create(gen func() string, build func(code string) *Room) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		code := NormalizeCode(gen())
		if _, taken := s.rooms[code]; taken {
			continue
		}
		room := build(code)
		s.rooms[code] = room
		return room
	}
}

// Get looks a room up by code. The code is normalized first.
func (s *RoomStore) Get(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[NormalizeCode(code)]
	return r, ok
}

// Delete removes the room if it is still the one registered under its code.
func (s *RoomStore) Delete(room *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rooms[room.Code]; ok && cur == room {
		delete(s.rooms, room.Code)
	}
}

// Len returns the number of live rooms.
func (s *RoomStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Infos returns a view of every live room, ordered by code.
func (s *RoomStore) Infos() []RoomInfo {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
