// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event. Exactly one of ReceiverID
// (direct message) or RoomID (room message) is set on a persisted message.
// The timestamp is server-assigned at append time; ordering is by
// timestamp, ties broken by id.
type Message struct {
	ID         uuid.UUID
	Content    string
	CreatedAt  time.Time
	SenderID   string
	ReceiverID string // empty for room messages
	RoomID     RoomID // empty for direct messages
	Lang       string // ISO-639-1 code detected at append time, best effort
}

// Direct reports whether the message targets a single user.
func (m Message) Direct() bool {
	return m.ReceiverID != ""
}
