package domain

import (
	"fmt"
	"strings"
	"time"
)

type RoomID string

// Room groups participants. A direct room holds exactly two participants
// and carries a system-generated name; a group room is user-named with
// arbitrary membership. Rooms are never auto-deleted, even when empty.
type Room struct {
	ID           RoomID
	Name         string
	Description  string
	CreatedAt    time.Time
	Direct       bool
	Participants []string
}

// AddParticipant is idempotent: adding an existing member is a no-op.
func (r *Room) AddParticipant(userID string) {
	if r.HasParticipant(userID) {
		return
	}
	r.Participants = append(r.Participants, userID)
}

// RemoveParticipant is idempotent: removing an absent member is a no-op.
func (r *Room) RemoveParticipant(userID string) {
	for i, p := range r.Participants {
		if p == userID {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return
		}
	}
}

func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// KeySegment makes an opaque id safe for use inside a composite store
// key. Ids are client-supplied and may contain the separator themselves,
// so the separator and the escape character are escaped; the result is
// prefix-free when followed by an unescaped ':'.
func KeySegment(id string) string {
	id = strings.ReplaceAll(id, `\`, `\\`)
	return strings.ReplaceAll(id, ":", `\:`)
}

// PairKey returns the canonical key for an unordered pair of user ids.
// PairKey(a, b) == PairKey(b, a) so the direct-room uniqueness index
// cannot be defeated by argument order. Segments are escaped so distinct
// pairs never collide on a shared key, whatever the ids contain.
func PairKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return KeySegment(userA) + ":" + KeySegment(userB)
}

// DirectRoomName builds the generated name of a 1:1 room.
func DirectRoomName(nameA, nameB string) string {
	return fmt.Sprintf("Direct: %s & %s", nameA, nameB)
}

// DirectRoomDescription builds the generated description of a 1:1 room.
func DirectRoomDescription(nameA, nameB string) string {
	return fmt.Sprintf("Direct chat between %s and %s", nameA, nameB)
}
