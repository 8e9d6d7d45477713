package runtime

import (
	"context"
	"testing"

	"conclave/domain/event"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []event.DomainEvent
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.events = append(s.events, e)
	return nil
}

func TestRegistry(t *testing.T) {
	req := require.New(t)

	t.Run("Subscribe and resolve", func(t *testing.T) {
		registry := NewRegistry()
		sink := &recordingSink{}

		registry.Subscribe("ui-1", "s1", sink)

		req.Len(registry.GetSinksForSession("s1"), 1)
		req.Nil(registry.GetSinksForSession("s2"))
	})

	t.Run("One subscriber watching two sessions keeps one sink entry", func(t *testing.T) {
		registry := NewRegistry()
		sink := &recordingSink{}

		registry.Subscribe("ui-1", "s1", sink)
		registry.Subscribe("ui-1", "s2", sink)

		req.Len(registry.Subscribers, 1)
		req.Len(registry.GetSinksForSession("s1"), 1)
		req.Len(registry.GetSinksForSession("s2"), 1)
	})

	t.Run("Unsubscribe cleans up empty watcher sets", func(t *testing.T) {
		registry := NewRegistry()
		registry.Subscribe("ui-1", "s1", &recordingSink{})

		registry.Unsubscribe("ui-1", "s1")

		req.Nil(registry.GetSinksForSession("s1"))
		req.Empty(registry.Watchers)
		req.Empty(registry.Subscribers)
	})

	t.Run("Unsubscribe leaves other watchers intact", func(t *testing.T) {
		registry := NewRegistry()
		registry.Subscribe("ui-1", "s1", &recordingSink{})
		registry.Subscribe("ui-2", "s1", &recordingSink{})

		registry.Unsubscribe("ui-1", "s1")

		req.Len(registry.GetSinksForSession("s1"), 1)
	})
}
