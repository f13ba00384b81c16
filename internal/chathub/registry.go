package chathub

import (
	"errors"
	"sync"
)

var ErrAlreadyAssociated = errors.New("connection already associated with a room")

// Association binds a live connection to at most one (room, participant) pair.
// It is transient state: it lives and dies with the socket.
type Association struct {
	ConnectionID  string
	RoomID        string
	ParticipantID string
	Nickname      string
}

// Registry tracks which room and participant each live connection belongs to.
// It is the only component aware of transport-level identity, and the place
// where "a transport close and an explicit leave must produce exactly one
// leave sequence" is enforced: Disassociate hands out the prior association
// once, so the second trigger observes nothing to do.
type Registry struct {
	mu           sync.RWMutex
	byConnection map[string]Association
	byRoom       map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byConnection: make(map[string]Association),
		byRoom:       make(map[string]map[string]struct{}),
	}
}

// Associate binds the connection. Re-associating without disassociating first
// is a protocol violation, not a silent re-join.
func (r *Registry) Associate(connectionID, roomID, participantID, nickname string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConnection[connectionID]; ok {
		return ErrAlreadyAssociated
	}
	r.byConnection[connectionID] = Association{
		ConnectionID:  connectionID,
		RoomID:        roomID,
		ParticipantID: participantID,
		Nickname:      nickname,
	}
	if r.byRoom[roomID] == nil {
		r.byRoom[roomID] = make(map[string]struct{})
	}
	r.byRoom[roomID][connectionID] = struct{}{}
	return nil
}

// Disassociate removes the binding and returns it, or ok=false when the
// connection held none. Idempotent.
func (r *Registry) Disassociate(connectionID string) (Association, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	assoc, ok := r.byConnection[connectionID]
	if !ok {
		return Association{}, false
	}
	delete(r.byConnection, connectionID)
	if conns, ok := r.byRoom[assoc.RoomID]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(r.byRoom, assoc.RoomID)
		}
	}
	return assoc, true
}

// Association returns the current binding for the connection, if any.
func (r *Registry) Association(connectionID string) (Association, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	assoc, ok := r.byConnection[connectionID]
	return assoc, ok
}

// ConnectionsInRoom returns the bindings of every live connection in the room.
func (r *Registry) ConnectionsInRoom(roomID string) []Association {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Association
	for connID := range r.byRoom[roomID] {
		result = append(result, r.byConnection[connID])
	}
	return result
}

// Size reports the number of associated connections, consumed by the health
// endpoint as a read-only metric.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConnection)
}
