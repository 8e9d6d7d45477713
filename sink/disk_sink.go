// Package sink holds the permanent event consumers fed by the fanout:
// durable storage, the search index, and the console transcript.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"conclave/contract"
	"conclave/domain"
	"conclave/domain/event"
)

// SnapshotFunc returns a consistent copy of one session's persistable state.
type SnapshotFunc func(sessionID string) (domain.Session, error)

// DiskSink persists the transcript message by message, and refreshes the
// session snapshot whenever durable session state changed (round finished,
// summary folded, kick confirmed).
type DiskSink struct {
	messages contract.IMessageRepository
	sessions contract.ISessionRepository
	snapshot SnapshotFunc
	log      *slog.Logger
}

func NewDiskSink(messages contract.IMessageRepository, sessions contract.ISessionRepository,
	snapshot SnapshotFunc, log *slog.Logger) DiskSink {
	return DiskSink{messages: messages, sessions: sessions, snapshot: snapshot, log: log}
}

func (d DiskSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageAppended:
		return d.messages.StoreMessage(evt.Message)
	case event.RoundFinished, event.SummaryUpdated, event.KickConfirmed, event.VoteStarted:
		return d.saveSession(e.SessionID())
	default:
		d.log.Debug(fmt.Sprintf("Not persisted event : %v", evt))
		return nil
	}
}

func (d DiskSink) saveSession(id string) error {
	session, err := d.snapshot(id)
	if err != nil {
		return err
	}
	return d.sessions.SaveSession(session)
}
