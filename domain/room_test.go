package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPairKey_Is_Order_Insensitive(t *testing.T) {
	req := require.New(t)

	req.Equal(PairKey("alice", "bob"), PairKey("bob", "alice"))
	req.Equal("alice:bob", PairKey("bob", "alice"))
}

func TestPairKey_Separator_In_Ids_Does_Not_Collide(t *testing.T) {
	req := require.New(t)

	// Distinct unordered pairs must map to distinct keys even when the
	// ids themselves contain the key separator.
	req.NotEqual(PairKey("a", "b:c"), PairKey("a:b", "c"))
	req.Equal(PairKey("a", "b:c"), PairKey("b:c", "a"))
	req.Equal(`a:b\:c`, PairKey("a", "b:c"))
}

func TestKeySegment_Escapes_Separator_And_Escape(t *testing.T) {
	req := require.New(t)

	req.Equal("plain", KeySegment("plain"))
	req.Equal(`a\:b`, KeySegment("a:b"))
	req.Equal(`a\\\:b`, KeySegment(`a\:b`))
}

func TestRoom_Participant_Operations_Are_Idempotent(t *testing.T) {
	req := require.New(t)
	room := Room{ID: "general"}

	room.AddParticipant("alice")
	room.AddParticipant("alice")
	req.Equal([]string{"alice"}, room.Participants)

	room.RemoveParticipant("ghost")
	req.Equal([]string{"alice"}, room.Participants)

	room.RemoveParticipant("alice")
	req.Empty(room.Participants)

	req.False(room.HasParticipant("alice"))
}

func TestDirectRoom_Generated_Names(t *testing.T) {
	req := require.New(t)

	req.Equal("Direct: Alice & Bob", DirectRoomName("Alice", "Bob"))
	req.Equal("Direct chat between Alice and Bob", DirectRoomDescription("Alice", "Bob"))
}

func TestMessage_Direct(t *testing.T) {
	req := require.New(t)

	req.True(Message{ReceiverID: "bob"}.Direct())
	req.False(Message{RoomID: "general"}.Direct())
}
