package workers

import (
	"context"
	"log/slog"
	"time"

	"conclave/contract"
	"conclave/domain/event"
)

// SessionSinks resolves the subscribers currently watching a session.
type SessionSinks interface {
	GetSinksForSession(sessionID string) []contract.EventSink
}

// EventFanout broadcasts domain events to multiple in-process consumers.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering across sinks, durability, or retries. EventFanout is not a
// message broker: it exists for persistence, indexing, and observability
// side effects, not for core round logic.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.DomainEvent
	permanent   []contract.EventSink
	registry    SessionSinks
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent,
	registry SessionSinks, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{
		log:         log,
		events:      events,
		permanent:   sinks,
		registry:    registry,
		sinkTimeout: sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt := <-w.events:
			w.fanout(ctx, evt)
		}
	}
}

// fanout delivers one event to every permanent sink plus whoever watches
// the session. A slow sink only burns its own timeout budget.
func (w *EventFanout) fanout(ctx context.Context, evt event.DomainEvent) {
	sinks := w.permanent
	if w.registry != nil {
		sinks = append(sinks[:len(sinks):len(sinks)], w.registry.GetSinksForSession(evt.SessionID())...)
	}

	for _, sink := range sinks {
		sinkCtx := ctx
		cancel := func() {}
		if w.sinkTimeout > 0 {
			sinkCtx, cancel = context.WithTimeout(ctx, w.sinkTimeout)
		}
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink rejected event", "error", err)
		}
		cancel()
	}
}
