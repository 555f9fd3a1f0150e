package relay

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry tracks which connections are joined to which room, keyed by client
// identifier within each room.
//
// A room exists only while it has members: it is created by the first Join
// and removed by the Leave or Release that empties it. The registry holds
// non-owning references; closing connections stays with the transport.
//
// Lock order is room then registry. The registry lock is never held while
// acquiring a room lock.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room

	log *slog.Logger
	obs Observer
}

type room struct {
	mu      sync.RWMutex
	members map[string]Conn
	// dead is set, under mu, by the removal that empties the room. A dead
	// room is unlinked from the registry before mu is released.
	dead bool
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Rooms   int
	Members int
}

// RoomStats is the member count of one room.
type RoomStats struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	o := applyOptions(opts)
	return &Registry{
		rooms: make(map[string]*room),
		log:   o.logger,
		obs:   o.observer,
	}
}

func (r *Registry) lookup(roomID string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// Join stores c under (roomID, clientID), creating the room if needed. The
// entry is visible to MembersOf as soon as Join returns.
//
// If the client identifier was already present in the room, the previous
// connection is overwritten and returned so the caller can decide what to do
// with it. Otherwise Join returns nil.
func (r *Registry) Join(roomID, clientID string, c Conn) Conn {
	for {
		rm := r.lookup(roomID)
		if rm == nil {
			if r.create(roomID, clientID, c) {
				r.log.Debug("registry.room_opened", "room", roomID, "client", clientID)
				return nil
			}
			continue
		}

		prev, ok := r.put(rm, roomID, clientID, c)
		if !ok {
			// Pruned between lookup and put.
			continue
		}
		if prev != nil {
			r.log.Debug("registry.member_replaced", "room", roomID, "client", clientID)
		}
		return prev
	}
}

// create links a new room holding a single member. It reports false if
// another goroutine linked the room first.
func (r *Registry) create(roomID, clientID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[roomID]; exists {
		return false
	}
	r.rooms[roomID] = &room{members: map[string]Conn{clientID: c}}
	r.obs.RoomOpened(roomID)
	r.obs.MemberJoined(roomID)
	return true
}

func (r *Registry) put(rm *room, roomID, clientID string, c Conn) (Conn, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.dead {
		return nil, false
	}
	prev := rm.members[clientID]
	rm.members[clientID] = c
	if prev == nil {
		r.obs.MemberJoined(roomID)
	}
	return prev, true
}

// Leave removes (roomID, clientID) if present and deletes the room when it
// becomes empty. Leaving an absent client or room is a no-op.
func (r *Registry) Leave(roomID, clientID string) {
	r.remove(roomID, clientID, nil)
}

// Release is Leave guarded by identity: the entry is removed only if it
// still holds c. A session whose connection was replaced by a later Join
// under the same client identifier therefore cannot evict its successor.
// It reports whether an entry was removed.
func (r *Registry) Release(roomID, clientID string, c Conn) bool {
	if c == nil {
		return false
	}
	return r.remove(roomID, clientID, c)
}

func (r *Registry) remove(roomID, clientID string, match Conn) bool {
	for {
		rm := r.lookup(roomID)
		if rm == nil {
			return false
		}

		rm.mu.Lock()
		if rm.dead {
			rm.mu.Unlock()
			continue
		}
		cur, ok := rm.members[clientID]
		if !ok || (match != nil && cur != match) {
			rm.mu.Unlock()
			return false
		}

		delete(rm.members, clientID)
		r.obs.MemberLeft(roomID)
		closed := len(rm.members) == 0
		if closed {
			rm.dead = true
			r.mu.Lock()
			if r.rooms[roomID] == rm {
				delete(r.rooms, roomID)
			}
			r.obs.RoomClosed(roomID)
			r.mu.Unlock()
		}
		rm.mu.Unlock()

		if closed {
			r.log.Debug("registry.room_closed", "room", roomID, "client", clientID)
		}
		return true
	}
}

// MembersOf returns a snapshot of the room's members, or nil if the room
// does not exist. The snapshot is safe to iterate without holding any lock.
func (r *Registry) MembersOf(roomID string) []Member {
	rm := r.lookup(roomID)
	if rm == nil {
		return nil
	}
	return rm.snapshot()
}

func (rm *room) snapshot() []Member {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if rm.dead {
		return nil
	}
	members := make([]Member, 0, len(rm.members))
	for id, c := range rm.members {
		members = append(members, Member{ClientID: id, Conn: c})
	}
	return members
}

func (rm *room) size() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if rm.dead {
		return 0
	}
	return len(rm.members)
}

// Len returns the number of members in the room, 0 if it does not exist.
func (r *Registry) Len(roomID string) int {
	rm := r.lookup(roomID)
	if rm == nil {
		return 0
	}
	return rm.size()
}

// Has reports whether the room currently exists.
func (r *Registry) Has(roomID string) bool {
	return r.Len(roomID) > 0
}

// linked copies the room pointers so callers can take room locks without
// holding the registry lock.
func (r *Registry) linked() map[string]*room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*room, len(r.rooms))
	for id, rm := range r.rooms {
		out[id] = rm
	}
	return out
}

// Rooms returns the sorted identifiers of all existing rooms.
func (r *Registry) Rooms() []string {
	ids := make([]string, 0)
	for id, rm := range r.linked() {
		if rm.size() > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// RoomStats returns per-room member counts sorted by room identifier.
func (r *Registry) RoomStats() []RoomStats {
	out := make([]RoomStats, 0)
	for id, rm := range r.linked() {
		if n := rm.size(); n > 0 {
			out = append(out, RoomStats{ID: id, Members: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns room and member totals.
func (r *Registry) Stats() Stats {
	var s Stats
	for _, rm := range r.linked() {
		if n := rm.size(); n > 0 {
			s.Rooms++
			s.Members += n
		}
	}
	return s
}

// CloseAll closes every registered connection and returns how many were
// closed. Membership is left untouched: each connection's session observes
// the disconnect and leaves on its own.
func (r *Registry) CloseAll() int {
	var conns []Conn
	for _, rm := range r.linked() {
		for _, m := range rm.snapshot() {
			conns = append(conns, m.Conn)
		}
	}

	for _, c := range conns {
		if err := c.Close(); err != nil {
			r.log.Debug("registry.close_failed", "err", err)
		}
	}
	return len(conns)
}
