package ws

import (
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound  = errors.New("media room not found")
	ErrWrongSpace    = errors.New("media room belongs to another space")
	ErrNotInRoom     = errors.New("not in a media room")
	ErrTargetMissing = errors.New("target is not in the room")
)

type Conn interface {
	Send(msg Message) error
	Close() error
	UserID() string
	SpaceID() string
}

type room struct {
	spaceID string
	conns   map[Conn]struct{}
}

// Hub tracks media rooms and their connections. Rooms outlive their members
// so a provisioned remoteName stays joinable; empty rooms of ended spaces
// are dropped by the server.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room // room name -> room
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

// Create registers a fresh room for spaceID and returns its name.
func (h *Hub) Create(spaceID string) string {
	name := "sp-" + uuid.NewString()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms[name] = &room{spaceID: spaceID, conns: make(map[Conn]struct{})}
	return name
}

// Add puts c into the room and returns the roster after the join.
func (h *Hub) Add(name string, c Conn) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if r.spaceID != c.SpaceID() {
		return nil, ErrWrongSpace
	}
	r.conns[c] = struct{}{}
	return r.roster(), nil
}

// Remove drops c from the room and returns how many connections are left.
func (h *Hub) Remove(name string, c Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[name]
	if !ok {
		return 0
	}
	delete(r.conns, c)
	return len(r.conns)
}

// Empty returns the rooms without connections, room name -> space id.
func (h *Hub) Empty() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string)
	for name, r := range h.rooms {
		if len(r.conns) == 0 {
			out[name] = r.spaceID
		}
	}
	return out
}

// Drop deletes the room unless someone joined it in the meantime.
func (h *Hub) Drop(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[name]
	if !ok || len(r.conns) > 0 {
		return false
	}
	delete(h.rooms, name)
	return true
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Find returns the connections of userID in the room.
func (h *Hub) Find(name, userID string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rooms[name]
	if !ok {
		return nil
	}
	var out []Conn
	for c := range r.conns {
		if c.UserID() == userID {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) Roster(name string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if r, ok := h.rooms[name]; ok {
		return r.roster()
	}
	return nil
}

// Broadcast sends msg to every connection in the room except skip.
func (h *Hub) Broadcast(name string, msg Message, skip Conn) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if r, ok := h.rooms[name]; ok {
		for c := range r.conns {
			if c == skip {
				continue
			}
			_ = c.Send(msg) // best-effort
		}
	}
}

func (r *room) roster() []string {
	out := make([]string, 0, len(r.conns))
	for c := range r.conns {
		if !slices.Contains(out, c.UserID()) {
			out = append(out, c.UserID())
		}
	}
	slices.Sort(out)
	return out
}
