//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"chat-relay/domain"
	"chat-relay/errors"
)

type IRoomRepository interface {
	SaveRoom(room domain.Room) error
	GetRoom(id domain.RoomID) (domain.Room, error)
	CreateDirectRoom(room domain.Room) error
	FindDirectRoom(userA, userB string) (domain.Room, error)
	RoomsForUser(userID string) ([]domain.Room, error)
}

type RoomRepository struct {
	db *badger.DB
}

func NewRoomRepository(db *badger.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func roomKey(id domain.RoomID) []byte {
	return []byte("room:" + string(id))
}

// pairIndexKey is the unique index enforcing at most one direct room per
// unordered user pair.
func pairIndexKey(userA, userB string) []byte {
	return []byte("pair:" + domain.PairKey(userA, userB))
}

func memberIndexKey(userID string, roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", domain.KeySegment(userID), roomID))
}

// SaveRoom writes the room record and reconciles the per-user membership
// index inside one transaction: index entries of removed participants are
// deleted, entries of current participants are written.
func (r RoomRepository) SaveRoom(room domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		var previous domain.Room
		item, err := txn.Get(roomKey(room.ID))
		switch err {
		case nil:
			if err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &previous)
			}); err != nil {
				return err
			}
		case badger.ErrKeyNotFound:
			// first write, nothing to reconcile
		default:
			return err
		}

		removed, _ := lo.Difference(previous.Participants, room.Participants)
		for _, userID := range removed {
			if err = txn.Delete(memberIndexKey(userID, room.ID)); err != nil {
				return err
			}
		}
		for _, userID := range room.Participants {
			if err = txn.Set(memberIndexKey(userID, room.ID), []byte(room.ID)); err != nil {
				return err
			}
		}
		return txn.Set(roomKey(room.ID), data)
	})
}

func (r RoomRepository) GetRoom(id domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &room)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, fmt.Errorf("%w: room %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// CreateDirectRoom inserts a direct room together with its pair index entry
// in a single serializable transaction. If the pair already has a room, or
// a concurrent creator commits first (badger conflict), ErrConflict is
// returned and the caller retries as a lookup. This is the one cross-request
// consistency guarantee of the system.
func (r RoomRepository) CreateDirectRoom(room domain.Room) error {
	if !room.Direct || len(room.Participants) != 2 {
		return fmt.Errorf("%w: direct room requires exactly two participants", errors.ErrValidation)
	}
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	pairKey := pairIndexKey(room.Participants[0], room.Participants[1])
	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(pairKey); err == nil {
			return errors.ErrConflict
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(pairKey, []byte(room.ID)); err != nil {
			return err
		}
		for _, userID := range room.Participants {
			if err := txn.Set(memberIndexKey(userID, room.ID), []byte(room.ID)); err != nil {
				return err
			}
		}
		return txn.Set(roomKey(room.ID), data)
	})
	if err == badger.ErrConflict {
		return fmt.Errorf("%w: direct room for pair already being created", errors.ErrConflict)
	}
	return err
}

// FindDirectRoom resolves the unordered pair through the unique index.
// Absence is reported as ErrNotFound; the caller decides whether it is fatal.
func (r RoomRepository) FindDirectRoom(userA, userB string) (domain.Room, error) {
	var roomID domain.RoomID
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pairIndexKey(userA, userB))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			roomID = domain.RoomID(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, fmt.Errorf("%w: no direct room for pair", errors.ErrNotFound)
	}
	if err != nil {
		return domain.Room{}, err
	}
	return r.GetRoom(roomID)
}

// RoomsForUser walks the membership index, then resolves each room record.
func (r RoomRepository) RoomsForUser(userID string) ([]domain.Room, error) {
	var roomIDs []domain.RoomID
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("member:%s:", domain.KeySegment(userID)))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				roomIDs = append(roomIDs, domain.RoomID(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rooms := make([]domain.Room, 0, len(roomIDs))
	for _, id := range roomIDs {
		room, err := r.GetRoom(id)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}
