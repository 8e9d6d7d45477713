//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"conclave/domain"

	"github.com/dgraph-io/badger/v4"
)

type MessageRepository struct {
	db    *badger.DB
	log   *slog.Logger
	limit *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limit *int) MessageRepository {
	return MessageRepository{db: db, log: log, limit: limit}
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{session_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		message.SessionID,
		message.CreatedAt.UnixNano(),
		message.ID,
	)
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
}

// GetMessages retrieves a session's messages using a prefix scan. Thanks to
// the padded timestamp in the key, messages come back naturally sorted by
// time. Collection stops once the configured limit is reached.
func (m MessageRepository) GetMessages(sessionID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", sessionID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if m.limit != nil && len(messages) == *m.limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limit))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var message domain.Message
				if err := json.Unmarshal(value, &message); err != nil {
					return err
				}
				messages = append(messages, message)
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
