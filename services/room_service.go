//go:generate go run go.uber.org/mock/mockgen -source=room_service.go -destination=../mocks/mock_room_service.go -package=mocks
package services

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type IRoomService interface {
	CreateRoom(cmd domain.CreateRoomCommand) (domain.Room, error)
	FindOrCreateDirectRoom(userA, userB string) (domain.Room, error)
	GetRoom(id domain.RoomID) (domain.Room, error)
	AddParticipant(roomID domain.RoomID, userID string) (domain.Room, error)
	RemoveParticipant(roomID domain.RoomID, userID string) (domain.Room, error)
	ListRoomsForUser(userID string) ([]domain.Room, error)
}

type RoomService struct {
	log      *slog.Logger
	rooms    repositories.IRoomRepository
	users    repositories.IUserRepository
	validate *validator.Validate
}

func NewRoomService(log *slog.Logger, rooms repositories.IRoomRepository,
	users repositories.IUserRepository) *RoomService {
	return &RoomService{
		log:      log,
		rooms:    rooms,
		users:    users,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreateRoom creates a group room after checking the command shape and
// that every named participant exists. Unknown participants fail the
// whole command, nothing partial is written.
func (s *RoomService) CreateRoom(cmd domain.CreateRoomCommand) (domain.Room, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return domain.Room{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	for _, userID := range cmd.ParticipantIDs {
		exists, err := s.users.UserExists(userID)
		if err != nil {
			return domain.Room{}, err
		}
		if !exists {
			return domain.Room{}, fmt.Errorf("%w: unknown participant %s", errors.ErrValidation, userID)
		}
	}

	room := domain.Room{
		ID:          domain.RoomID(uuid.NewString()),
		Name:        cmd.Name,
		Description: cmd.Description,
		CreatedAt:   time.Now().UTC(),
	}
	for _, userID := range cmd.ParticipantIDs {
		room.AddParticipant(userID)
	}

	if err := s.rooms.SaveRoom(room); err != nil {
		return domain.Room{}, err
	}
	s.log.Info("Room created", "room_id", room.ID, "participants", len(room.Participants))
	return room, nil
}

// FindOrCreateDirectRoom resolves the single 1:1 room of an unordered user
// pair, creating it on first use. A losing concurrent creator gets
// ErrConflict from the repository and retries as a lookup, so both callers
// observe the same room.
func (s *RoomService) FindOrCreateDirectRoom(userA, userB string) (domain.Room, error) {
	if userA == "" || userB == "" || userA == userB {
		return domain.Room{}, fmt.Errorf("%w: a direct room needs two distinct users", errors.ErrValidation)
	}

	room, err := s.rooms.FindDirectRoom(userA, userB)
	if err == nil {
		return room, nil
	}
	if !stderrors.Is(err, errors.ErrNotFound) {
		return domain.Room{}, err
	}

	a, err := s.users.GetUser(userA)
	if err != nil {
		return domain.Room{}, fmt.Errorf("resolve first participant: %w", err)
	}
	b, err := s.users.GetUser(userB)
	if err != nil {
		return domain.Room{}, fmt.Errorf("resolve second participant: %w", err)
	}

	room = domain.Room{
		ID:           domain.RoomID(uuid.NewString()),
		Name:         domain.DirectRoomName(a.Name, b.Name),
		Description:  domain.DirectRoomDescription(a.Name, b.Name),
		CreatedAt:    time.Now().UTC(),
		Direct:       true,
		Participants: []string{userA, userB},
	}
	err = s.rooms.CreateDirectRoom(room)
	if stderrors.Is(err, errors.ErrConflict) {
		// Lost the race, the winner's room is authoritative.
		return s.rooms.FindDirectRoom(userA, userB)
	}
	if err != nil {
		return domain.Room{}, err
	}
	s.log.Info("Direct room created", "room_id", room.ID)
	return room, nil
}

func (s *RoomService) GetRoom(id domain.RoomID) (domain.Room, error) {
	return s.rooms.GetRoom(id)
}

// AddParticipant adds a user to a group room. Adding an existing member is
// a no-op that still returns the room. Direct rooms have fixed membership.
func (s *RoomService) AddParticipant(roomID domain.RoomID, userID string) (domain.Room, error) {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Direct {
		return domain.Room{}, fmt.Errorf("%w: direct room membership is fixed", errors.ErrValidation)
	}
	exists, err := s.users.UserExists(userID)
	if err != nil {
		return domain.Room{}, err
	}
	if !exists {
		return domain.Room{}, fmt.Errorf("%w: unknown user %s", errors.ErrValidation, userID)
	}
	if room.HasParticipant(userID) {
		return room, nil
	}
	room.AddParticipant(userID)
	if err := s.rooms.SaveRoom(room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// RemoveParticipant removes a user from a group room. Removing an absent
// member is a no-op. An emptied room is kept, never auto-deleted.
func (s *RoomService) RemoveParticipant(roomID domain.RoomID, userID string) (domain.Room, error) {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Direct {
		return domain.Room{}, fmt.Errorf("%w: direct room membership is fixed", errors.ErrValidation)
	}
	if !room.HasParticipant(userID) {
		return room, nil
	}
	room.RemoveParticipant(userID)
	if err := s.rooms.SaveRoom(room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *RoomService) ListRoomsForUser(userID string) ([]domain.Room, error) {
	return s.rooms.RoomsForUser(userID)
}
