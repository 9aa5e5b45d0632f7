package ws

import (
	"sort"
	"sync"

	"github.com/hilthontt/chatrelay/internal/domain"
)

// Peer is the registry's view of a live connection.
type Peer interface {
	ID() domain.ConnectionID
	UserID() domain.UserID
	Send(msg *Message) error
	Close()
}

type connection struct {
	peer  Peer
	rooms map[domain.RoomID]struct{}
}

// Registry tracks live connections and room membership. Rooms exist only
// while they have at least one member; empty entries are pruned on every
// leave and disconnect. A single RWMutex guards both maps.
type Registry struct {
	mu          sync.RWMutex
	connections map[domain.ConnectionID]*connection
	rooms       map[domain.RoomID]map[domain.ConnectionID]Peer
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[domain.ConnectionID]*connection),
		rooms:       make(map[domain.RoomID]map[domain.ConnectionID]Peer),
	}
}

// Connect registers peer with an empty room set.
func (r *Registry) Connect(peer Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[peer.ID()]; ok {
		return domain.ErrConnectionExists
	}

	r.connections[peer.ID()] = &connection{
		peer:  peer,
		rooms: make(map[domain.RoomID]struct{}),
	}
	return nil
}

// Disconnect removes id from every room and forgets it. It returns the
// rooms the connection was in and whether it was registered at all.
func (r *Registry) Disconnect(id domain.ConnectionID) ([]domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[id]
	if !ok {
		return nil, false
	}

	left := make([]domain.RoomID, 0, len(conn.rooms))
	for room := range conn.rooms {
		r.removeMemberLocked(room, id)
		left = append(left, room)
	}
	delete(r.connections, id)

	sortRooms(left)
	return left, true
}

// Join moves (id, room) to MEMBER. It reports whether the state changed and
// the member count afterwards. Unknown connections are ignored.
func (r *Registry) Join(id domain.ConnectionID, room domain.RoomID) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[id]
	if !ok {
		return false, len(r.rooms[room])
	}
	if _, member := conn.rooms[room]; member {
		return false, len(r.rooms[room])
	}

	members := r.rooms[room]
	if members == nil {
		members = make(map[domain.ConnectionID]Peer)
		r.rooms[room] = members
	}
	members[id] = conn.peer
	conn.rooms[room] = struct{}{}

	return true, len(members)
}

// Leave moves (id, room) to NOT_MEMBER. It reports whether the state changed
// and the member count afterwards.
func (r *Registry) Leave(id domain.ConnectionID, room domain.RoomID) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[id]
	if !ok {
		return false, len(r.rooms[room])
	}
	if _, member := conn.rooms[room]; !member {
		return false, len(r.rooms[room])
	}

	delete(conn.rooms, room)
	r.removeMemberLocked(room, id)

	return true, len(r.rooms[room])
}

func (r *Registry) removeMemberLocked(room domain.RoomID, id domain.ConnectionID) {
	members := r.rooms[room]
	if members == nil {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Members returns a snapshot of the peers in room, excluding exclude.
func (r *Registry) Members(room domain.RoomID, exclude domain.ConnectionID) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	peers := make([]Peer, 0, len(members))
	for id, peer := range members {
		if id == exclude {
			continue
		}
		peers = append(peers, peer)
	}
	return peers
}

// Rooms returns the rooms id is a member of, sorted.
func (r *Registry) Rooms(id domain.ConnectionID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[id]
	if !ok {
		return nil
	}

	rooms := make([]domain.RoomID, 0, len(conn.rooms))
	for room := range conn.rooms {
		rooms = append(rooms, room)
	}
	sortRooms(rooms)
	return rooms
}

func (r *Registry) Peer(id domain.ConnectionID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[id]
	if !ok {
		return nil, false
	}
	return conn.peer, true
}

func (r *Registry) IsMember(id domain.ConnectionID, room domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[room][id]
	return ok
}

func (r *Registry) MemberCount(room domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Reset drops all state and returns the peers that were registered.
func (r *Registry) Reset() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make([]Peer, 0, len(r.connections))
	for _, conn := range r.connections {
		peers = append(peers, conn.peer)
	}

	r.connections = make(map[domain.ConnectionID]*connection)
	r.rooms = make(map[domain.RoomID]map[domain.ConnectionID]Peer)
	return peers
}

func sortRooms(rooms []domain.RoomID) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
}
