//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/search"
)

type IChatService interface {
	RegisterUser(user domain.User) error
	SendDirectMessage(cmd domain.SendDirectMessageCommand) (domain.Message, error)
	SendRoomMessage(cmd domain.SendRoomMessageCommand) (domain.Message, error)
	AnnounceJoin(userID string)
	AnnounceLeave(userID string)
	ReportFailure(senderID, reason string)
	Search(ctx context.Context, rawQuery string) ([]search.Hit, error)
}

// ChatService is the facade the transport layer talks to. It validates
// inbound commands, appends through the message pipeline, enriches the
// stored event with display names, and hands it to the dispatcher. The
// append is durable before any push is attempted.
type ChatService struct {
	log        *slog.Logger
	messages   IMessageService
	users      repositories.IUserRepository
	dispatcher contract.Dispatcher
	index      *search.Index
	validate   *validator.Validate
}

func NewChatService(log *slog.Logger, messages IMessageService,
	users repositories.IUserRepository, dispatcher contract.Dispatcher,
	index *search.Index) *ChatService {
	return &ChatService{
		log:        log,
		messages:   messages,
		users:      users,
		dispatcher: dispatcher,
		index:      index,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *ChatService) RegisterUser(user domain.User) error {
	if user.ID == "" || user.Name == "" {
		return fmt.Errorf("%w: user id and name are required", errors.ErrValidation)
	}
	return s.users.SaveUser(user)
}

// SendDirectMessage validates, appends and dispatches a 1:1 message. The
// returned message carries the server-assigned id and timestamp.
func (s *ChatService) SendDirectMessage(cmd domain.SendDirectMessageCommand) (domain.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	msg, err := s.messages.AppendDirect(cmd.SenderID, cmd.ReceiverID, cmd.Content)
	if err != nil {
		return domain.Message{}, err
	}
	s.dispatcher.Dispatch(event.MessageStored{
		Message:      msg,
		SenderName:   s.displayName(cmd.SenderID),
		ReceiverName: s.displayName(cmd.ReceiverID),
	})
	return msg, nil
}

// SendRoomMessage validates, appends and dispatches a room message.
func (s *ChatService) SendRoomMessage(cmd domain.SendRoomMessageCommand) (domain.Message, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	msg, err := s.messages.AppendRoom(cmd.SenderID, cmd.RoomID, cmd.Content)
	if err != nil {
		return domain.Message{}, err
	}
	s.dispatcher.Dispatch(event.MessageStored{
		Message:    msg,
		SenderName: s.displayName(cmd.SenderID),
	})
	return msg, nil
}

// AnnounceJoin broadcasts a JOIN frame to every live connection.
func (s *ChatService) AnnounceJoin(userID string) {
	s.dispatcher.Dispatch(event.UserJoined{
		UserID:   userID,
		UserName: s.displayName(userID),
		At:       time.Now().UTC(),
	})
}

// AnnounceLeave broadcasts a LEAVE frame to every live connection.
func (s *ChatService) AnnounceLeave(userID string) {
	s.dispatcher.Dispatch(event.UserLeft{
		UserID:   userID,
		UserName: s.displayName(userID),
		At:       time.Now().UTC(),
	})
}

// ReportFailure routes an in-band ERROR frame back to the sender only.
func (s *ChatService) ReportFailure(senderID, reason string) {
	s.dispatcher.Dispatch(event.DeliveryFailure{
		SenderID: senderID,
		Reason:   reason,
		At:       time.Now().UTC(),
	})
}

// Search runs a full-text query over the message index. The raw input is
// the slash-command form ("/find term --room id --limit n") or plain terms.
func (s *ChatService) Search(ctx context.Context, rawQuery string) ([]search.Hit, error) {
	query := search.ParseQuery(rawQuery)
	if len(query.Terms) == 0 {
		return nil, fmt.Errorf("%w: empty search query", errors.ErrValidation)
	}
	return s.index.Search(ctx, query)
}

// displayName degrades to the raw id when the user record is unavailable;
// a push must not fail over a missing display name.
func (s *ChatService) displayName(userID string) string {
	user, err := s.users.GetUser(userID)
	if err != nil {
		s.log.Warn("Display name lookup failed", "user_id", userID, "error", err)
		return userID
	}
	return user.Name
}
