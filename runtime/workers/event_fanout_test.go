package workers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"conclave/contract"
	"conclave/domain"
	"conclave/domain/event"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type staticRegistry struct {
	sinks map[string][]contract.EventSink
}

func (r staticRegistry) GetSinksForSession(sessionID string) []contract.EventSink {
	return r.sinks[sessionID]
}

func TestEventFanout(t *testing.T) {
	req := require.New(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Permanent sinks receive every event", func(t *testing.T) {
		events := make(chan event.DomainEvent, 8)
		permanent := &recordingSink{}
		fanout := NewEventFanout(log, events, nil, time.Second, permanent)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			_ = fanout.Run(ctx)
			close(done)
		}()

		events <- event.MessageAppended{Message: domain.Message{SessionID: "s1"}}
		events <- event.RoundFinished{Session: "s2"}

		req.Eventually(func() bool { return permanent.count() == 2 }, time.Second, 10*time.Millisecond)
		cancel()
		<-done
	})

	t.Run("Session subscribers only see their session", func(t *testing.T) {
		events := make(chan event.DomainEvent, 8)
		watcher := &recordingSink{}
		registry := staticRegistry{sinks: map[string][]contract.EventSink{
			"s1": {watcher},
		}}
		fanout := NewEventFanout(log, events, registry, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			_ = fanout.Run(ctx)
			close(done)
		}()

		events <- event.MessageAppended{Message: domain.Message{SessionID: "s1"}}
		events <- event.MessageAppended{Message: domain.Message{SessionID: "s2"}}
		events <- event.RoundFinished{Session: "s1"}

		req.Eventually(func() bool { return watcher.count() == 2 }, time.Second, 10*time.Millisecond)
		cancel()
		<-done

		req.Equal(2, watcher.count())
	})
}
