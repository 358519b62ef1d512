//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
	"chat-relay/errors"
)

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	RoomHistory(roomID domain.RoomID, limit int) ([]domain.Message, error)
	Conversation(userA, userB string, limit int) ([]domain.Message, error)
	CountDirectSince(senderID, receiverID string, since time.Time) (int, error)
	MessagesSince(since time.Time) ([]domain.Message, error)
}

type MessageRepository struct {
	db *badger.DB
}

func NewMessageRepository(db *badger.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Message keys embed a 19-digit zero-padded UnixNano so a forward prefix
// scan yields chronological order, with the message id as a collision
// disconnector when two messages land on the same nanosecond.
func roomMessageKey(roomID domain.RoomID, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:room:%s:%019d:%s", roomID, at.UnixNano(), id))
}

func directMessageKey(pair string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:direct:%s:%019d:%s", pair, at.UnixNano(), id))
}

// StoreMessage persists a message under its room or conversation prefix.
// A message carrying a room id is only accepted when the room record exists
// in the same transaction: a dangling room reference fails explicitly with
// ErrNotFound instead of being silently dropped.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	if message.SenderID == "" {
		return fmt.Errorf("%w: message sender is required", errors.ErrValidation)
	}
	if (message.ReceiverID == "") == (message.RoomID == "") {
		return fmt.Errorf("%w: exactly one of receiver or room must be set", errors.ErrValidation)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	var key []byte
	if message.Direct() {
		pair := domain.PairKey(message.SenderID, message.ReceiverID)
		key = directMessageKey(pair, message.CreatedAt, message.ID.String())
	} else {
		key = roomMessageKey(message.RoomID, message.CreatedAt, message.ID.String())
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if message.RoomID != "" {
			if _, err := txn.Get(roomKey(message.RoomID)); err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: room %s", errors.ErrNotFound, message.RoomID)
			} else if err != nil {
				return err
			}
		}
		return txn.Set(key, data)
	})
}

// RoomHistory returns the messages of a room in ascending timestamp order.
// limit <= 0 means no bound.
func (m MessageRepository) RoomHistory(roomID domain.RoomID, limit int) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("msg:room:%s:", roomID))
	return m.scan(prefix, limit, nil)
}

// Conversation returns the direct messages exchanged between the unordered
// pair, either direction, ascending by timestamp then id.
func (m MessageRepository) Conversation(userA, userB string, limit int) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("msg:direct:%s:", domain.PairKey(userA, userB)))
	return m.scan(prefix, limit, nil)
}

// CountDirectSince counts direct messages from sender to receiver with a
// timestamp at or after the checkpoint. This is the unread-count proxy: no
// read-receipt state is modeled, only "sent after a checkpoint".
func (m MessageRepository) CountDirectSince(senderID, receiverID string, since time.Time) (int, error) {
	prefix := []byte(fmt.Sprintf("msg:direct:%s:", domain.PairKey(senderID, receiverID)))
	messages, err := m.scan(prefix, 0, func(msg domain.Message) bool {
		return msg.SenderID == senderID && !msg.CreatedAt.Before(since)
	})
	if err != nil {
		return 0, err
	}
	return len(messages), nil
}

// MessagesSince collects every message across rooms and conversations with
// a timestamp at or after since. Admin/diagnostic query, full scan of the
// message namespace.
func (m MessageRepository) MessagesSince(since time.Time) ([]domain.Message, error) {
	return m.scan([]byte("msg:"), 0, func(msg domain.Message) bool {
		return !msg.CreatedAt.Before(since)
	})
}

func (m MessageRepository) scan(prefix []byte, limit int, keep func(domain.Message) bool) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(val, &msg); err != nil {
					return fmt.Errorf("corrupt message record %s: %w", it.Item().Key(), err)
				}
				if keep == nil || keep(msg) {
					messages = append(messages, msg)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}
