package runtime

import (
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
)

type member struct {
	session domain.Session
	sink    contract.EventSink
}

// Registry is the in-memory presence directory: one session per live
// connection, grouped by room in join order. It is the single writer
// for session records; every mutation runs under the registry mutex so
// the (room, username) uniqueness invariant holds across concurrent
// joins and disconnects. State is process-local and lost on restart:
// presence is a live concept, not history.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]member
	roomOrder map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[string]member),
		roomOrder: make(map[string][]string),
	}
}

// Add creates the session for a connection after normalizing and
// validating the claimed identity. It fails when either name is empty
// after normalization or when the (room, username) pair is already
// held by an active session. The returned count is the room's member
// total including the new session, taken under the registry mutex: two
// concurrent joiners of an empty room observe 1 and 2, never 2 and 2,
// so exactly one of them is the room's first member.
func (r *Registry) Add(connectionID, username, room string, sink contract.EventSink) (domain.Session, int, error) {
	username = domain.Normalize(username)
	room = domain.Normalize(room)
	if username == "" || room == "" {
		return domain.Session{}, 0, errors.ErrMissingFields
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.roomOrder[room] {
		if r.sessions[id].session.Username == username {
			return domain.Session{}, 0, errors.ErrUsernameTaken
		}
	}

	session := domain.Session{ConnectionID: connectionID, Username: username, Room: room}
	r.sessions[connectionID] = member{session: session, sink: sink}
	r.roomOrder[room] = append(r.roomOrder[room], connectionID)
	return session, len(r.roomOrder[room]), nil
}

// Remove deletes the connection's session. Idempotent: removing an
// unknown connection reports false.
func (r *Registry) Remove(connectionID string) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.sessions[connectionID]
	if !ok {
		return domain.Session{}, false
	}
	delete(r.sessions, connectionID)

	room := m.session.Room
	ids := r.roomOrder[room]
	for i, id := range ids {
		if id == connectionID {
			r.roomOrder[room] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.roomOrder[room]) == 0 {
		delete(r.roomOrder, room)
	}
	return m.session, true
}

// Get returns the session bound to a connection.
func (r *Registry) Get(connectionID string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.sessions[connectionID]
	return m.session, ok
}

// ListRoom returns the room's active sessions in join order. An
// unnormalizable or absent room yields an empty sequence.
func (r *Registry) ListRoom(room string) []domain.Session {
	room = domain.Normalize(room)

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.roomOrder[room]
	sessions := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		sessions = append(sessions, r.sessions[id].session)
	}
	return sessions
}

// FindInRoom resolves a username to its session within one room.
func (r *Registry) FindInRoom(room, username string) (domain.Session, bool) {
	room = domain.Normalize(room)
	username = domain.Normalize(username)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.roomOrder[room] {
		if m := r.sessions[id]; m.session.Username == username {
			return m.session, true
		}
	}
	return domain.Session{}, false
}

// SinkFor returns the delivery channel of one connection.
func (r *Registry) SinkFor(connectionID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.sessions[connectionID]
	return m.sink, ok
}

// SinksForRoom returns the delivery channels of every room member,
// optionally excluding one connection (the broadcast-to-others case).
func (r *Registry) SinksForRoom(room, excludeConnectionID string) []contract.EventSink {
	room = domain.Normalize(room)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []contract.EventSink
	for _, id := range r.roomOrder[room] {
		if id == excludeConnectionID {
			continue
		}
		sinks = append(sinks, r.sessions[id].sink)
	}
	return sinks
}
