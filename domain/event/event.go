// Package event defines the domain events flowing from the append path to
// the delivery router and its sinks.
package event

import (
	"time"

	"chat-relay/domain"
)

type DomainEvent interface {
	OccurredAt() time.Time
}

// MessageStored is emitted after a message has been durably appended.
// Delivery is driven exclusively by this event: persistence first, push
// second, isolated failure domains.
type MessageStored struct {
	Message    domain.Message
	SenderName string
	// ReceiverName is resolved for direct messages only.
	ReceiverName string
}

func (e MessageStored) OccurredAt() time.Time { return e.Message.CreatedAt }

// UserJoined is broadcast on the public topic when a connection
// authenticates. Presence-adjacent UI signal, never persisted.
type UserJoined struct {
	UserID   string
	UserName string
	At       time.Time
}

func (e UserJoined) OccurredAt() time.Time { return e.At }

// UserLeft is broadcast on the public topic when a connection terminates.
type UserLeft struct {
	UserID   string
	UserName string
	At       time.Time
}

func (e UserLeft) OccurredAt() time.Time { return e.At }

// DeliveryFailure records a live push that could not reach one recipient.
// Reported in-band to the sender only; other recipients are unaffected.
type DeliveryFailure struct {
	SenderID string
	Reason   string
	At       time.Time
}

func (e DeliveryFailure) OccurredAt() time.Time { return e.At }
