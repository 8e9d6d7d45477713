//go:generate go run go.uber.org/mock/mockgen -source=participant.go -destination=../mocks/mock_participant_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"

	"conclave/domain"
	apperrors "conclave/errors"

	"github.com/dgraph-io/badger/v4"
)

type ParticipantRepository struct {
	db *badger.DB
}

func NewParticipantRepository(db *badger.DB) ParticipantRepository {
	return ParticipantRepository{db: db}
}

func participantKey(id string) []byte {
	return []byte("participant:" + id)
}

func (r ParticipantRepository) SaveParticipant(p domain.Participant) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(participantKey(p.ID), payload)
	})
}

func (r ParticipantRepository) GetParticipant(id string) (domain.Participant, error) {
	var p domain.Participant
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(participantKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return apperrors.ErrParticipantNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	return p, err
}

func (r ParticipantRepository) ListParticipants() ([]domain.Participant, error) {
	var roster []domain.Participant
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("participant:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var p domain.Participant
				if err := json.Unmarshal(val, &p); err != nil {
					return err
				}
				roster = append(roster, p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return roster, err
}
