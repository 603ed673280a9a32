//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
)

const roomKeyPrefix = "room:"

// appendRetries bounds the creation-race retry loop. Concurrent
// appends to the same room conflict at commit time; each round at
// least one writer commits, so the bound only needs to cover the
// realistic fan-in of one room.
const appendRetries = 10

type IRoomRepository interface {
	AppendMessage(room string, message domain.Message) error
	ListMessages(room string) ([]domain.Message, error)
	PruneIdleRooms(maxIdle time.Duration) (int, error)
}

// RoomRepository persists one record per room in BadgerDB under
// "room:{normalized name}". The record value is the JSON RoomRecord:
// append-only message sequence plus the last-modified timestamp the
// retention job prunes on.
type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewRoomRepository(db *badger.DB, log *slog.Logger, now func() time.Time) RoomRepository {
	return RoomRepository{db: db, log: log, now: now}
}

// AppendMessage appends to the room's record, creating it if absent.
// Create-and-append is atomic: the read-modify-write runs in one
// serializable transaction, and a commit conflict with a concurrent
// creator or appender is retried against the winning record.
func (r RoomRepository) AppendMessage(room string, message domain.Message) error {
	key := recordKey(room)
	var err error
	for attempt := 0; attempt < appendRetries; attempt++ {
		err = r.db.Update(func(txn *badger.Txn) error {
			record, err := readRecord(txn, key)
			if err != nil {
				return err
			}
			if record.RoomName == "" {
				record.RoomName = domain.Normalize(room)
			}
			record.Messages = append(record.Messages, message)
			record.UpdatedAt = r.now().UTC()

			value, err := json.Marshal(record)
			if err != nil {
				return err
			}
			return txn.Set(key, value)
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		r.log.Debug("append conflict, retrying", "room", room, "attempt", attempt+1)
	}
	return fmt.Errorf("appending to room %q: %w", room, err)
}

// ListMessages returns the room's messages in storage order. An
// unknown room yields an empty sequence, never an error.
func (r RoomRepository) ListMessages(room string) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		record, err := readRecord(txn, recordKey(room))
		if err != nil {
			return err
		}
		messages = record.Messages
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// PruneIdleRooms deletes every room whose record has not been modified
// for maxIdle, regardless of live sessions, and returns the count.
func (r RoomRepository) PruneIdleRooms(maxIdle time.Duration) (int, error) {
	cutoff := r.now().UTC().Add(-maxIdle)

	var stale [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		prefix := []byte(roomKeyPrefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var record domain.RoomRecord
			err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &record)
			})
			if err != nil {
				return err
			}
			if record.UpdatedAt.Before(cutoff) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	batch := r.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range stale {
		if err := batch.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := batch.Flush(); err != nil {
		return 0, err
	}

	r.log.Info("pruned idle rooms", "count", len(stale))
	return len(stale), nil
}

func recordKey(room string) []byte {
	return []byte(roomKeyPrefix + domain.Normalize(room))
}

// readRecord loads the record at key, returning a zero record when the
// room does not exist yet.
func readRecord(txn *badger.Txn, key []byte) (domain.RoomRecord, error) {
	var record domain.RoomRecord
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return record, nil
	}
	if err != nil {
		return record, err
	}
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &record)
	})
	return record, err
}
