// Package presence tracks which participants are currently connected
// and which rooms their connections occupy. It is purely in-memory and
// rebuilt empty on every process start; the durable session store holds
// all billing truth.
package presence

import (
	"sync"

	"github.com/astroline/consult-server-go/internal/model"
)

type roomState struct {
	// joined maps role -> participant id for roles that have signaled
	// presence. Duplicate joins by the same role do not change it.
	joined map[model.ParticipantRole]string
	conns  map[string]model.ParticipantRole
}

type Registry struct {
	mu sync.Mutex

	// astrologer id -> connection id; last registered wins.
	astrologers map[string]string
	// room id -> room membership.
	rooms map[string]*roomState
	// connection id -> set of room ids the connection has joined.
	connRooms map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		astrologers: make(map[string]string),
		rooms:       make(map[string]*roomState),
		connRooms:   make(map[string]map[string]struct{}),
	}
}

// RegisterAstrologer records the connection currently representing an
// astrologer. A newer connection replaces the previous one.
func (r *Registry) RegisterAstrologer(astrologerID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.astrologers[astrologerID] = connID
}

func (r *Registry) UnregisterAstrologer(astrologerID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Only the connection that registered may unregister; a replaced
	// connection disconnecting later must not evict its successor.
	if r.astrologers[astrologerID] == connID {
		delete(r.astrologers, astrologerID)
	}
}

func (r *Registry) AstrologerOnline(astrologerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.astrologers[astrologerID]
	return ok
}

// Join records a connection entering a room in a role and reports
// whether both roles are now present. A duplicate join from a role that
// already signaled is a no-op and reports the current state unchanged.
func (r *Registry) Join(roomID, connID string, role model.ParticipantRole, participantID string) (bothPresent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[roomID]
	if room == nil {
		room = &roomState{
			joined: make(map[model.ParticipantRole]string),
			conns:  make(map[string]model.ParticipantRole),
		}
		r.rooms[roomID] = room
	}

	if _, already := room.joined[role]; !already {
		room.joined[role] = participantID
	}
	room.conns[connID] = role

	if r.connRooms[connID] == nil {
		r.connRooms[connID] = make(map[string]struct{})
	}
	r.connRooms[connID][roomID] = struct{}{}

	_, userIn := room.joined[model.RoleUser]
	_, astroIn := room.joined[model.RoleAstrologer]
	return userIn && astroIn
}

// Leave removes a connection from a room without tearing the room down.
func (r *Registry) Leave(roomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room := r.rooms[roomID]; room != nil {
		delete(room.conns, connID)
	}
	if rooms := r.connRooms[connID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.connRooms, connID)
		}
	}
}

// Release discards all bookkeeping for a room. Called on terminal
// session transitions.
func (r *Registry) Release(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[roomID]
	if room == nil {
		return
	}
	for connID := range room.conns {
		if rooms := r.connRooms[connID]; rooms != nil {
			delete(rooms, roomID)
			if len(rooms) == 0 {
				delete(r.connRooms, connID)
			}
		}
	}
	delete(r.rooms, roomID)
}

// Rooms returns the rooms a connection has joined.
func (r *Registry) Rooms(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make([]string, 0, len(r.connRooms[connID]))
	for roomID := range r.connRooms[connID] {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// Disconnect removes every trace of a connection and returns the rooms
// it had joined, so the lifecycle coordinator can run cleanup per room.
func (r *Registry) Disconnect(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make([]string, 0, len(r.connRooms[connID]))
	for roomID := range r.connRooms[connID] {
		rooms = append(rooms, roomID)
		if room := r.rooms[roomID]; room != nil {
			delete(room.conns, connID)
		}
	}
	delete(r.connRooms, connID)

	for astrologerID, c := range r.astrologers {
		if c == connID {
			delete(r.astrologers, astrologerID)
		}
	}
	return rooms
}
