package domain

import (
	"time"

	"github.com/google/uuid"
)

// PayloadType tags an outbound frame. ERROR is delivered in-band with the
// same shape, Content holding a human-readable failure description, so the
// client can reconcile its optimistic UI state instead of dropping it.
type PayloadType string

const (
	TypeChat  PayloadType = "CHAT"
	TypeJoin  PayloadType = "JOIN"
	TypeLeave PayloadType = "LEAVE"
	TypeError PayloadType = "ERROR"
)

// Payload is the per-recipient frame pushed to live connections.
type Payload struct {
	ID           uuid.UUID   `json:"id,omitempty"`
	Content      string      `json:"content,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	SenderID     string      `json:"senderId,omitempty"`
	SenderName   string      `json:"senderName,omitempty"`
	ReceiverID   string      `json:"receiverId,omitempty"`
	ReceiverName string      `json:"receiverName,omitempty"`
	RoomID       RoomID      `json:"roomId,omitempty"`
	Type         PayloadType `json:"type"`
}
