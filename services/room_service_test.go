package services

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
)

func newRoomService(t *testing.T) (*RoomService, repositories.IUserRepository) {
	t.Helper()
	db := newTestDB(t)
	users := repositories.NewUserRepository(db)
	rooms := repositories.NewRoomRepository(db)
	return NewRoomService(slog.Default(), rooms, users), users
}

func TestRoomService_Create_Group_Room(t *testing.T) {
	req := require.New(t)
	service, users := newRoomService(t)
	seedUsers(t, users, "alice", "bob")

	room, err := service.CreateRoom(domain.CreateRoomCommand{
		Name:           "General",
		Description:    "Town square",
		ParticipantIDs: []string{"alice", "bob"},
	})
	req.NoError(err)
	req.NotEmpty(room.ID)
	req.False(room.Direct)
	req.ElementsMatch([]string{"alice", "bob"}, room.Participants)

	fetched, err := service.GetRoom(room.ID)
	req.NoError(err)
	req.Equal("General", fetched.Name)
}

func TestRoomService_Create_Rejects_Unknown_Participant(t *testing.T) {
	req := require.New(t)
	service, users := newRoomService(t)
	seedUsers(t, users, "alice")

	_, err := service.CreateRoom(domain.CreateRoomCommand{
		Name:           "General",
		ParticipantIDs: []string{"alice", "ghost"},
	})
	req.ErrorIs(err, errors.ErrValidation)
}

func TestRoomService_Create_Rejects_Empty_Name(t *testing.T) {
	req := require.New(t)
	service, users := newRoomService(t)
	seedUsers(t, users, "alice")

	_, err := service.CreateRoom(domain.CreateRoomCommand{
		ParticipantIDs: []string{"alice"},
	})
	req.ErrorIs(err, errors.ErrValidation)
}

func TestRoomService_Direct_Room_Created_Once(t *testing.T) {
	req := require.New(t)
	service, users := newRoomService(t)
	seedUsers(t, users, "alice", "bob")

	first, err := service.FindOrCreateDirectRoom("alice", "bob")
	req.NoError(err)
	req.True(first.Direct)
	req.Equal("Direct: alice & bob", first.Name)
	req.Equal("Direct chat between alice and bob", first.Description)

	// When asked again with the arguments swapped
	second, err := service.FindOrCreateDirectRoom("bob", "alice")
	req.NoError(err)

	// Then the same room comes back
	req.Equal(first.ID, second.ID)
}

func TestRoomService_Direct_Rooms_Distinct_For_Ids_Containing_Separator(t *testing.T) {
	req := require.New(t)
	service, users := newRoomService(t)
	seedUsers(t, users, "a", "b:c", "a:b", "c")

	// Given a direct room for the pair {a, b:c}
	first, err := service.FindOrCreateDirectRoom("a", "b:c")
	req.NoError(err)
	req.ElementsMatch([]string{"a", "b:c"}, first.Participants)

	// When the distinct pair {a:b, c} asks for its direct room
	second, err := service.FindOrCreateDirectRoom("a:b", "c")
	req.NoError(err)

	// Then it gets its own room with its own participants
	req.NotEqual(first.ID, second.ID)
	req.ElementsMatch([]string{"a:b", "c"}, second.Participants)
}

func TestRoomService_Direct_Room_Concurrent_Requests_Converge(t *testing.T) {
	req := require.New(t)
	service, users := newRoomService(t)
	seedUsers(t, users, "alice", "bob")

	var wg sync.WaitGroup
	results := make([]domain.Room, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.FindOrCreateDirectRoom("alice", "bob")
		}(i)
	}
	wg.Wait()

	// Then every caller gets the same room, none an error
	for i := 0; i < 4; i++ {
		req.NoError(errs[i])
		req.Equal(results[0].ID, results[i].ID)
	}
}

func TestRoomService_Direct_Room_Rejects_Self(t *testing.T) {
	req := require.New(t)
	service, users := newRoomService(t)
	seedUsers(t, users, "alice")

	_, err := service.FindOrCreateDirectRoom("alice", "alice")
	req.ErrorIs(err, errors.ErrValidation)
}

func TestRoomService_Add_And_Remove_Participant(t *testing.T) {
	req := require.New(t)
	service, users := newRoomService(t)
	seedUsers(t, users, "alice", "bob", "clara")

	room, err := service.CreateRoom(domain.CreateRoomCommand{
		Name:           "General",
		ParticipantIDs: []string{"alice"},
	})
	req.NoError(err)

	// When clara joins twice
	updated, err := service.AddParticipant(room.ID, "clara")
	req.NoError(err)
	updated, err = service.AddParticipant(room.ID, "clara")
	req.NoError(err)
	req.Len(updated.Participants, 2)

	// When bob, who never joined, is removed
	updated, err = service.RemoveParticipant(room.ID, "bob")
	req.NoError(err)
	req.Len(updated.Participants, 2)

	// When everyone leaves, the room survives empty
	_, err = service.RemoveParticipant(room.ID, "alice")
	req.NoError(err)
	updated, err = service.RemoveParticipant(room.ID, "clara")
	req.NoError(err)
	req.Empty(updated.Participants)

	fetched, err := service.GetRoom(room.ID)
	req.NoError(err)
	req.Empty(fetched.Participants)
}

func TestRoomService_Mutating_Unknown_Room(t *testing.T) {
	req := require.New(t)
	service, users := newRoomService(t)
	seedUsers(t, users, "alice")

	_, err := service.AddParticipant("ghost", "alice")
	req.ErrorIs(err, errors.ErrNotFound)

	_, err = service.RemoveParticipant("ghost", "alice")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestRoomService_Direct_Room_Membership_Is_Fixed(t *testing.T) {
	req := require.New(t)
	service, users := newRoomService(t)
	seedUsers(t, users, "alice", "bob", "clara")

	room, err := service.FindOrCreateDirectRoom("alice", "bob")
	req.NoError(err)

	_, err = service.AddParticipant(room.ID, "clara")
	req.ErrorIs(err, errors.ErrValidation)
}

func TestRoomService_List_Rooms_For_User(t *testing.T) {
	req := require.New(t)
	service, users := newRoomService(t)
	seedUsers(t, users, "alice", "bob")

	_, err := service.CreateRoom(domain.CreateRoomCommand{
		Name: "General", ParticipantIDs: []string{"alice", "bob"},
	})
	req.NoError(err)
	_, err = service.FindOrCreateDirectRoom("alice", "bob")
	req.NoError(err)
	_, err = service.CreateRoom(domain.CreateRoomCommand{
		Name: "Bob only", ParticipantIDs: []string{"bob"},
	})
	req.NoError(err)

	aliceRooms, err := service.ListRoomsForUser("alice")
	req.NoError(err)
	req.Len(aliceRooms, 2)

	bobRooms, err := service.ListRoomsForUser("bob")
	req.NoError(err)
	req.Len(bobRooms, 3)
}
