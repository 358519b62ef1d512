package runtime

import (
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
)

type Set map[string]struct{}

type session struct {
	userID string
	sink   contract.EventSink
}

// Registry is the transient connection state shared by the session layer
// and the delivery router: connection -> user binding, per-user connection
// sets, per-room topic subscriptions and the public topic. All methods are
// safe for concurrent use; fan-out reads take a snapshot so a broadcast
// never observes a torn subscriber set.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]session        // connID -> bound identity + sink
	userConns map[string]Set            // userID -> connIDs
	roomSubs  map[domain.RoomID]Set     // roomID -> subscribed connIDs
	connRooms map[string]map[domain.RoomID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[string]session),
		userConns: make(map[string]Set),
		roomSubs:  make(map[domain.RoomID]Set),
		connRooms: make(map[string]map[domain.RoomID]struct{}),
	}
}

// Bind associates an authenticated connection with a user and its sink.
// The connection joins the public topic implicitly.
func (r *Registry) Bind(connID, userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[connID] = session{userID: userID, sink: sink}
	if _, ok := r.userConns[userID]; !ok {
		r.userConns[userID] = make(Set)
	}
	r.userConns[userID][connID] = struct{}{}
}

// Unbind removes a connection everywhere. Calling it twice for the same
// connection is a no-op, which keeps connection close idempotent.
func (r *Registry) Unbind(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return
	}
	delete(r.sessions, connID)

	if conns, ok := r.userConns[sess.userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.userConns, sess.userID)
		}
	}
	for roomID := range r.connRooms[connID] {
		if subs, ok := r.roomSubs[roomID]; ok {
			delete(subs, connID)
			if len(subs) == 0 {
				delete(r.roomSubs, roomID)
			}
		}
	}
	delete(r.connRooms, connID)
}

// SubscribeRoom joins a connection to a room topic. Subscription is
// topic-based: a room participant who never subscribed receives no live
// push and catches up through history.
func (r *Registry) SubscribeRoom(connID string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; !ok {
		return
	}
	if _, ok := r.roomSubs[roomID]; !ok {
		r.roomSubs[roomID] = make(Set)
	}
	r.roomSubs[roomID][connID] = struct{}{}
	if _, ok := r.connRooms[connID]; !ok {
		r.connRooms[connID] = make(map[domain.RoomID]struct{})
	}
	r.connRooms[connID][roomID] = struct{}{}
}

func (r *Registry) UnsubscribeRoom(connID string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subs, ok := r.roomSubs[roomID]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(r.roomSubs, roomID)
		}
	}
	if rooms, ok := r.connRooms[connID]; ok {
		delete(rooms, roomID)
	}
}

// SinksForUser returns the sinks of every live connection bound to a user.
func (r *Registry) SinksForUser(userID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.userConns[userID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(conns))
	for connID := range conns {
		if sess, ok := r.sessions[connID]; ok {
			sinks = append(sinks, sess.sink)
		}
	}
	return sinks
}

// SinksForRoom returns a snapshot of the sinks subscribed to a room topic.
func (r *Registry) SinksForRoom(roomID domain.RoomID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs, ok := r.roomSubs[roomID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(subs))
	for connID := range subs {
		if sess, ok := r.sessions[connID]; ok {
			sinks = append(sinks, sess.sink)
		}
	}
	return sinks
}

// PublicSinks returns every bound connection's sink, for JOIN/LEAVE
// broadcasts on the public topic.
func (r *Registry) PublicSinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.EventSink, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sinks = append(sinks, sess.sink)
	}
	return sinks
}

// UserOf resolves the user bound to a connection.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[connID]
	return sess.userID, ok
}

// ConnectionCount reports the live connections bound for a user.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns[userID])
}
