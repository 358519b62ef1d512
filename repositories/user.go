//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
	"chat-relay/errors"
)

type IUserRepository interface {
	SaveUser(user domain.User) error
	GetUser(id string) (domain.User, error)
	UserExists(id string) (bool, error)
	SetPresence(id string, online bool, lastSeen time.Time) error
	ListOnlineUsers() ([]domain.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func (u UserRepository) SaveUser(user domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	})
}

func (u UserRepository) GetUser(id string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.User{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (u UserRepository) UserExists(id string) (bool, error) {
	err := u.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey(id))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetPresence updates the persisted online flag and last-seen timestamp so
// that observers without a live session can still read presence.
func (u UserRepository) SetPresence(id string, online bool, lastSeen time.Time) error {
	err := u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		var user domain.User
		if err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		}); err != nil {
			return err
		}
		user.Online = online
		user.LastSeen = lastSeen
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), data)
	})
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
	}
	return err
}

// ListOnlineUsers scans the user namespace and keeps the records flagged
// online. Sourced from persisted state, not the transient connection map.
func (u UserRepository) ListOnlineUsers() ([]domain.User, error) {
	var online []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte("user:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var user domain.User
				if err := json.Unmarshal(val, &user); err != nil {
					return fmt.Errorf("corrupt user record %s: %w",
						strings.TrimPrefix(string(it.Item().Key()), "user:"), err)
				}
				if user.Online {
					online = append(online, user)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return online, err
}
