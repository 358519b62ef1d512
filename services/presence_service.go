//go:generate go run go.uber.org/mock/mockgen -source=presence_service.go -destination=../mocks/mock_presence_service.go -package=mocks
package services

import (
	"log/slog"
	"sync"
	"time"

	"chat-relay/domain"
	"chat-relay/repositories"
)

type IPresenceService interface {
	SetOnline(connID, userID string) error
	SetOffline(connID string) (string, error)
	ListOnlineUsers() ([]domain.PresenceEntry, error)
	IsOnline(userID string) bool
}

// PresenceService owns the transient connection -> user map and keeps a
// live-connection count per user: a user flips offline only when the last
// connection unbinds, so a second tab closing never knocks out the first.
// The online flag is also persisted so observers without a live session
// can read presence.
type PresenceService struct {
	mu     sync.Mutex
	log    *slog.Logger
	users  repositories.IUserRepository
	conns  map[string]string // connID -> userID
	counts map[string]int    // userID -> live connections
}

func NewPresenceService(log *slog.Logger, users repositories.IUserRepository) *PresenceService {
	return &PresenceService{
		log:    log,
		users:  users,
		conns:  make(map[string]string),
		counts: make(map[string]int),
	}
}

// SetOnline binds a connection to a user. Only the first connection
// persists the online flag; rebinding the same connection is a no-op.
func (s *PresenceService) SetOnline(connID, userID string) error {
	s.mu.Lock()
	if _, bound := s.conns[connID]; bound {
		s.mu.Unlock()
		return nil
	}
	s.conns[connID] = userID
	s.counts[userID]++
	first := s.counts[userID] == 1
	s.mu.Unlock()

	if !first {
		return nil
	}
	return s.users.SetPresence(userID, true, time.Now().UTC())
}

// SetOffline unbinds a connection and returns the user it belonged to.
// Idempotent: a second close signal for the same connection returns an
// empty user id and no error. Only the last connection persists the
// offline flag.
func (s *PresenceService) SetOffline(connID string) (string, error) {
	s.mu.Lock()
	userID, bound := s.conns[connID]
	if !bound {
		s.mu.Unlock()
		return "", nil
	}
	delete(s.conns, connID)
	s.counts[userID]--
	last := s.counts[userID] <= 0
	if last {
		delete(s.counts, userID)
	}
	s.mu.Unlock()

	if !last {
		return userID, nil
	}
	return userID, s.users.SetPresence(userID, false, time.Now().UTC())
}

// ListOnlineUsers snapshots presence from persisted state, not the
// transient map, since other processes may be observers.
func (s *PresenceService) ListOnlineUsers() ([]domain.PresenceEntry, error) {
	users, err := s.users.ListOnlineUsers()
	if err != nil {
		return nil, err
	}
	entries := make([]domain.PresenceEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, domain.PresenceEntry{
			UserID:   u.ID,
			Online:   u.Online,
			LastSeen: u.LastSeen,
		})
	}
	return entries, nil
}

// IsOnline consults the transient map only.
func (s *PresenceService) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[userID] > 0
}
