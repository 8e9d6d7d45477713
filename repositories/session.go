//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"

	"conclave/domain"
	apperrors "conclave/errors"

	"github.com/dgraph-io/badger/v4"
)

// SessionRepository persists session snapshots (everything but the message
// log, which lives under its own msg: keys). A snapshot plus a message scan
// is the minimum needed to resume a session.
type SessionRepository struct {
	db *badger.DB
}

func NewSessionRepository(db *badger.DB) SessionRepository {
	return SessionRepository{db: db}
}

func sessionKey(id string) []byte {
	return []byte("session:" + id)
}

func (r SessionRepository) SaveSession(session domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.ID), payload)
	})
}

func (r SessionRepository) GetSession(id string) (domain.Session, error) {
	var session domain.Session
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return apperrors.ErrSessionNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &session)
		})
	})
	return session, err
}

func (r SessionRepository) ListSessions() ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("session:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var session domain.Session
				if err := json.Unmarshal(val, &session); err != nil {
					return err
				}
				sessions = append(sessions, session)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return sessions, err
}
