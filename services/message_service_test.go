package services

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
)

func newMessageService(t *testing.T, forbidden ...string) (*MessageService, repositories.IUserRepository, repositories.IRoomRepository) {
	t.Helper()
	db := newTestDB(t)
	users := repositories.NewUserRepository(db)
	rooms := repositories.NewRoomRepository(db)
	messages := repositories.NewMessageRepository(db)
	moderator, err := moderation.NewModerator(forbidden, '*')
	require.NoError(t, err)
	service := NewMessageService(slog.Default(), messages, users, moderator, observability.NewMonitor())
	return service, users, rooms
}

func TestMessageService_Append_Assigns_Id_And_Timestamp(t *testing.T) {
	req := require.New(t)
	service, users, _ := newMessageService(t)
	seedUsers(t, users, "alice", "bob")

	before := time.Now().UTC()
	msg, err := service.AppendDirect("alice", "bob", "hello")
	req.NoError(err)

	req.NotEqual(uuid.Nil, msg.ID)
	req.False(msg.CreatedAt.Before(before))
	req.True(msg.Direct())

	// And the message is durable
	conversation, err := service.Conversation("alice", "bob", 0)
	req.NoError(err)
	req.Len(conversation, 1)
	req.Equal(msg.ID, conversation[0].ID)
}

func TestMessageService_Append_Rejects_Unknown_Users(t *testing.T) {
	req := require.New(t)
	service, users, _ := newMessageService(t)
	seedUsers(t, users, "alice")

	_, err := service.AppendDirect("ghost", "alice", "hello")
	req.ErrorIs(err, errors.ErrNotFound)

	_, err = service.AppendDirect("alice", "ghost", "hello")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageService_Append_Room_Requires_Room(t *testing.T) {
	req := require.New(t)
	service, users, rooms := newMessageService(t)
	seedUsers(t, users, "alice")

	_, err := service.AppendRoom("alice", "ghost", "hello")
	req.ErrorIs(err, errors.ErrNotFound)

	req.NoError(rooms.SaveRoom(domain.Room{ID: "general", Name: "General", Participants: []string{"alice"}}))
	msg, err := service.AppendRoom("alice", "general", "hello")
	req.NoError(err)
	req.False(msg.Direct())

	history, err := service.RoomHistory("general", 0)
	req.NoError(err)
	req.Len(history, 1)
}

func TestMessageService_Censors_Before_Persisting(t *testing.T) {
	req := require.New(t)
	service, users, _ := newMessageService(t, "secret")
	seedUsers(t, users, "alice", "bob")

	msg, err := service.AppendDirect("alice", "bob", "the secret plan")
	req.NoError(err)
	req.NotContains(msg.Content, "secret")

	// History holds the censored form too, never the original
	conversation, err := service.Conversation("alice", "bob", 0)
	req.NoError(err)
	req.NotContains(conversation[0].Content, "secret")
}

func TestMessageService_Tags_Language(t *testing.T) {
	req := require.New(t)
	service, users, _ := newMessageService(t)
	seedUsers(t, users, "alice", "bob")

	msg, err := service.AppendDirect("alice", "bob",
		"The quick brown fox jumps over the lazy dog and keeps on running through the field")
	req.NoError(err)
	req.Equal("en", msg.Lang)
}

func TestMessageService_Unread_Count(t *testing.T) {
	req := require.New(t)
	service, users, _ := newMessageService(t)
	seedUsers(t, users, "alice", "bob")

	checkpoint := time.Now().UTC().Add(-time.Minute)
	_, err := service.AppendDirect("bob", "alice", "one")
	req.NoError(err)
	_, err = service.AppendDirect("bob", "alice", "two")
	req.NoError(err)
	_, err = service.AppendDirect("alice", "bob", "reply")
	req.NoError(err)

	count, err := service.UnreadCount("bob", "alice", checkpoint)
	req.NoError(err)
	req.Equal(2, count)
}

func TestMessageService_Recent_Messages_Window(t *testing.T) {
	req := require.New(t)
	service, users, _ := newMessageService(t)
	seedUsers(t, users, "alice", "bob")

	_, err := service.AppendDirect("alice", "bob", "fresh")
	req.NoError(err)

	recent, err := service.RecentMessages(time.Hour)
	req.NoError(err)
	req.Len(recent, 1)

	none, err := service.RecentMessages(0)
	req.NoError(err)
	req.Empty(none)
}
