//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
)

type IMessageService interface {
	AppendDirect(senderID, receiverID, content string) (domain.Message, error)
	AppendRoom(senderID string, roomID domain.RoomID, content string) (domain.Message, error)
	Conversation(userA, userB string, limit int) ([]domain.Message, error)
	RoomHistory(roomID domain.RoomID, limit int) ([]domain.Message, error)
	UnreadCount(senderID, receiverID string, since time.Time) (int, error)
	RecentMessages(window time.Duration) ([]domain.Message, error)
}

// MessageService is the append path. Every message passes through the same
// pipeline: censor, language-tag, stamp id and server timestamp, persist.
// Delivery is not its concern; the caller dispatches the stored event.
type MessageService struct {
	log       *slog.Logger
	messages  repositories.IMessageRepository
	users     repositories.IUserRepository
	moderator moderation.Moderator
	monitor   *observability.Monitor
}

func NewMessageService(log *slog.Logger, messages repositories.IMessageRepository,
	users repositories.IUserRepository, moderator moderation.Moderator,
	monitor *observability.Monitor) *MessageService {
	return &MessageService{
		log:       log,
		messages:  messages,
		users:     users,
		moderator: moderator,
		monitor:   monitor,
	}
}

// AppendDirect stores a direct message. The receiver does not need to be
// online, or even to have a live session: history is the source of truth.
func (s *MessageService) AppendDirect(senderID, receiverID, content string) (domain.Message, error) {
	if exists, err := s.users.UserExists(receiverID); err != nil {
		return domain.Message{}, err
	} else if !exists {
		return domain.Message{}, fmt.Errorf("%w: receiver %s", errors.ErrNotFound, receiverID)
	}
	return s.append(domain.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	})
}

// AppendRoom stores a room message. Room existence is checked by the
// repository inside the store transaction.
func (s *MessageService) AppendRoom(senderID string, roomID domain.RoomID, content string) (domain.Message, error) {
	return s.append(domain.Message{
		SenderID: senderID,
		RoomID:   roomID,
		Content:  content,
	})
}

func (s *MessageService) append(msg domain.Message) (domain.Message, error) {
	if exists, err := s.users.UserExists(msg.SenderID); err != nil {
		return domain.Message{}, err
	} else if !exists {
		return domain.Message{}, fmt.Errorf("%w: sender %s", errors.ErrNotFound, msg.SenderID)
	}

	censored, found := s.moderator.Censor(msg.Content)
	if len(found) > 0 {
		s.log.Info("Message content censored", "sender_id", msg.SenderID, "matches", len(found))
	}
	msg.Content = censored
	msg.Lang = detectLang(censored)
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now().UTC()

	if err := s.messages.StoreMessage(msg); err != nil {
		return domain.Message{}, err
	}
	s.monitor.IncrStored()
	return msg, nil
}

// detectLang tags the message with an ISO-639-1 code, best effort. Short
// or ambiguous content stays untagged rather than mislabeled.
func detectLang(content string) string {
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

func (s *MessageService) Conversation(userA, userB string, limit int) ([]domain.Message, error) {
	return s.messages.Conversation(userA, userB, limit)
}

func (s *MessageService) RoomHistory(roomID domain.RoomID, limit int) ([]domain.Message, error) {
	return s.messages.RoomHistory(roomID, limit)
}

// UnreadCount counts direct messages from sender to receiver at or after
// the checkpoint. The caller owns the checkpoint; no read state is kept
// server side.
func (s *MessageService) UnreadCount(senderID, receiverID string, since time.Time) (int, error) {
	return s.messages.CountDirectSince(senderID, receiverID, since)
}

// RecentMessages returns every message stored within the trailing window,
// across all rooms and conversations.
func (s *MessageService) RecentMessages(window time.Duration) ([]domain.Message, error) {
	return s.messages.MessagesSince(time.Now().UTC().Add(-window))
}
