package sink_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"conclave/domain"
	"conclave/domain/event"
	"conclave/sink"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeMessageRepo struct {
	stored []domain.Message
}

func (r *fakeMessageRepo) StoreMessage(m domain.Message) error {
	r.stored = append(r.stored, m)
	return nil
}

func (r *fakeMessageRepo) GetMessages(string) ([]domain.Message, error) { return nil, nil }

type fakeSessionRepo struct {
	saved []domain.Session
}

func (r *fakeSessionRepo) SaveSession(s domain.Session) error {
	r.saved = append(r.saved, s)
	return nil
}

func (r *fakeSessionRepo) GetSession(string) (domain.Session, error) {
	return domain.Session{}, nil
}

func (r *fakeSessionRepo) ListSessions() ([]domain.Session, error) { return nil, nil }

func TestDiskSink(t *testing.T) {
	req := require.New(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	snapshot := func(id string) (domain.Session, error) {
		return domain.Session{ID: id, Title: "resumable"}, nil
	}

	t.Run("Appended messages are persisted", func(t *testing.T) {
		messages := &fakeMessageRepo{}
		sessions := &fakeSessionRepo{}
		d := sink.NewDiskSink(messages, sessions, snapshot, log)

		msg := domain.Message{ID: uuid.New(), SessionID: "s1", SenderID: "alice", Content: "hello"}
		req.NoError(d.Consume(ctx, event.MessageAppended{Message: msg}))

		req.Len(messages.stored, 1)
		req.Equal(msg, messages.stored[0])
		req.Empty(sessions.saved)
	})

	t.Run("Round end refreshes the session snapshot", func(t *testing.T) {
		messages := &fakeMessageRepo{}
		sessions := &fakeSessionRepo{}
		d := sink.NewDiskSink(messages, sessions, snapshot, log)

		req.NoError(d.Consume(ctx, event.RoundFinished{Session: "s1"}))

		req.Len(sessions.saved, 1)
		req.Equal("s1", sessions.saved[0].ID)
	})

	t.Run("Summary and kick confirmations also snapshot", func(t *testing.T) {
		messages := &fakeMessageRepo{}
		sessions := &fakeSessionRepo{}
		d := sink.NewDiskSink(messages, sessions, snapshot, log)

		req.NoError(d.Consume(ctx, event.SummaryUpdated{Session: "s1", Folded: 10}))
		req.NoError(d.Consume(ctx, event.KickConfirmed{Session: "s1", Target: "wolf-1"}))

		req.Len(sessions.saved, 2)
	})

	t.Run("Unrelated events are ignored", func(t *testing.T) {
		messages := &fakeMessageRepo{}
		sessions := &fakeSessionRepo{}
		d := sink.NewDiskSink(messages, sessions, snapshot, log)

		req.NoError(d.Consume(ctx, event.RoundStarted{Session: "s1"}))

		req.Empty(messages.stored)
		req.Empty(sessions.saved)
	})
}
