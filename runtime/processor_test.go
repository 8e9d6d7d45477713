package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"conclave/ai"
	"conclave/domain"
	"conclave/domain/event"
	apperrors "conclave/errors"

	"github.com/stretchr/testify/require"
)

// scriptedGenerator replays canned responses per participant and records the
// history each call received.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	histories map[string][][]domain.Message
	onCall    func(participantID string)
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		histories: make(map[string][][]domain.Message),
	}
}

func (g *scriptedGenerator) say(id string, responses ...string) {
	g.responses[id] = append(g.responses[id], responses...)
}

func (g *scriptedGenerator) Generate(_ context.Context, req ai.Request) (ai.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := req.Participant.ID
	g.histories[id] = append(g.histories[id], req.History)
	if g.onCall != nil {
		g.onCall(id)
	}
	if err := g.errs[id]; err != nil {
		return ai.Response{}, err
	}

	queue := g.responses[id]
	if len(queue) == 0 {
		return ai.Response{Content: "…"}, nil
	}
	g.responses[id] = queue[1:]
	return ai.Response{Content: queue[0]}, nil
}

func (g *scriptedGenerator) calls(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.histories[id])
}

type processorEnv struct {
	store     *Store
	roster    *Roster
	generator *scriptedGenerator
	processor *Processor
	events    chan event.DomainEvent
	clock     *time.Time
}

func newProcessorEnv(t *testing.T, mode domain.Mode) *processorEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	env := &processorEnv{
		store:     NewStore().WithClock(now),
		roster:    NewRoster(),
		generator: newScriptedGenerator(),
		events:    make(chan event.DomainEvent, 128),
		clock:     &clock,
	}
	env.roster.Load([]domain.Participant{
		{ID: "judge", Name: "The Judge", Enabled: true},
		{ID: "alice", Name: "Alice", Enabled: true},
		{ID: "bob", Name: "Bob", Enabled: true},
	})
	refereeID := ""
	if mode.Refereed() {
		refereeID = "judge"
	}
	env.store.Put(domain.Session{ID: "s1", Mode: mode, RefereeID: refereeID})
	env.processor = NewProcessor(log, env.store, env.roster, env.generator, nil, nil, env.events).WithClock(now)
	return env
}

// tick advances the fake clock so consecutive identical turns do not trip
// the dedup window.
func (env *processorEnv) tick() {
	*env.clock = env.clock.Add(3 * time.Second)
}

func (env *processorEnv) drainEvents() []event.DomainEvent {
	var out []event.DomainEvent
	for {
		select {
		case e := <-env.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func (env *processorEnv) messages(t *testing.T) []domain.Message {
	t.Helper()
	snapshot, err := env.store.Snapshot("s1")
	require.NoError(t, err)
	return snapshot.Messages
}

func TestRunRound_Refereed(t *testing.T) {
	req := require.New(t)

	t.Run("Opening, players in order, resolution", func(t *testing.T) {
		env := newProcessorEnv(t, domain.Judge)
		env.generator.say("judge",
			"[[PUBLIC]] Round begins. [[NEXT: ALL]]",
			"That settles it. [[NEXT: NONE]]",
		)
		env.generator.say("alice", "I accuse Bob.")
		env.generator.say("bob", "Outrageous.")
		env.generator.onCall = func(string) { env.tick() }

		next, err := env.processor.RunRound(context.Background(), "s1", nil)

		req.NoError(err)
		req.Nil(next)

		msgs := env.messages(t)
		req.Len(msgs, 4)
		req.Equal([]string{"judge", "alice", "bob", "judge"}, senders(msgs))
		req.Equal("Round begins.", msgs[0].Content)
		req.Equal("That settles it.", msgs[3].Content)
		req.False(env.store.Processing("s1"))
	})

	t.Run("Resolution hand-off chains a continuation", func(t *testing.T) {
		env := newProcessorEnv(t, domain.Judge)
		env.generator.say("judge",
			"[[PUBLIC]] Alice only. [[NEXT: alice]]",
			"Bob, answer her. [[NEXT: bob]]",
		)
		env.generator.onCall = func(string) { env.tick() }

		next, err := env.processor.RunRound(context.Background(), "s1", nil)

		req.NoError(err)
		req.Equal([]string{"bob"}, next)
		req.Equal(0, env.generator.calls("bob"))
	})

	t.Run("Kick is staged, never applied", func(t *testing.T) {
		env := newProcessorEnv(t, domain.Judge)
		env.generator.say("judge",
			"Enough. <<KICK:alice|constant derailing>> [[NEXT: ALL]]",
			"[[NEXT: NONE]]",
		)
		env.generator.say("bob", "Finally.")
		env.generator.onCall = func(string) { env.tick() }

		_, err := env.processor.RunRound(context.Background(), "s1", nil)
		req.NoError(err)

		// Staged: alice skipped her turn but stays enabled on the roster.
		req.True(env.store.KickStaged("s1", "alice"))
		req.Equal(0, env.generator.calls("alice"))
		alice, _ := env.roster.Get("alice")
		req.True(alice.Enabled)

		staged := eventsOf[event.KickStaged](env.drainEvents())
		req.Len(staged, 1)
		req.Equal("alice", staged[0].Target)
		req.Equal("constant derailing", staged[0].Reason)
	})

	t.Run("Vote started by referee, ballot cast by player", func(t *testing.T) {
		env := newProcessorEnv(t, domain.Judge)
		env.generator.say("judge",
			"[[VOTE_START: alice, bob]] Choose. [[NEXT: ALL]]",
			"[[NEXT: NONE]]",
		)
		env.generator.say("alice", "It must be him. [[VOTE: bob]]")
		env.generator.say("bob", "I abstain.")
		env.generator.onCall = func(string) { env.tick() }

		_, err := env.processor.RunRound(context.Background(), "s1", nil)
		req.NoError(err)

		snapshot, _ := env.store.Snapshot("s1")
		req.True(snapshot.Vote.Active)
		req.Equal("bob", snapshot.Vote.Ballots["alice"])

		cast := eventsOf[event.VoteCast](env.drainEvents())
		req.Len(cast, 1)
		req.Equal("alice", cast[0].Voter)
	})

	t.Run("Private segment resolves display name to id", func(t *testing.T) {
		env := newProcessorEnv(t, domain.Judge)
		env.generator.say("judge",
			"[[PRIVATE: Alice ]] Your secret role. [[NEXT: NONE]]",
		)
		env.generator.onCall = func(string) { env.tick() }

		_, err := env.processor.RunRound(context.Background(), "s1", nil)
		req.NoError(err)

		msgs := env.messages(t)
		req.Len(msgs, 1)
		req.Equal("alice", msgs[0].Recipient)
	})

	t.Run("Failure appends one system message and aborts", func(t *testing.T) {
		env := newProcessorEnv(t, domain.Judge)
		env.generator.say("judge", "[[PUBLIC]] Speak. [[NEXT: ALL]]")
		env.generator.errs["alice"] = &apperrors.StatusError{Status: 429, Body: "slow down"}
		env.generator.onCall = func(string) { env.tick() }

		_, err := env.processor.RunRound(context.Background(), "s1", nil)

		req.Error(err)
		req.Equal(0, env.generator.calls("bob"))

		msgs := env.messages(t)
		last := msgs[len(msgs)-1]
		req.True(last.IsError)
		req.Equal(domain.SystemSenderID, last.SenderID)
		req.Contains(last.Content, "rate-limit")

		failed := eventsOf[event.GenerationFailed](env.drainEvents())
		req.Len(failed, 1)
		req.Equal("rate-limit", failed[0].Category)
	})

	t.Run("Cancellation ends the round quietly", func(t *testing.T) {
		env := newProcessorEnv(t, domain.Judge)
		ctx, cancel := context.WithCancel(context.Background())

		env.generator.say("judge", "[[PUBLIC]] Speak freely. [[NEXT: ALL]]")
		env.generator.say("alice", "This must never appear.")
		env.generator.onCall = func(id string) {
			env.tick()
			if id == "alice" {
				cancel()
			}
		}

		next, err := env.processor.RunRound(ctx, "s1", nil)

		req.NoError(err)
		req.Nil(next)
		req.False(env.store.Processing("s1"))

		// Only the referee's pre-cancellation message survives.
		msgs := env.messages(t)
		req.Len(msgs, 1)
		req.Equal("judge", msgs[0].SenderID)

		finished := eventsOf[event.RoundFinished](env.drainEvents())
		req.Len(finished, 1)
		req.True(finished[0].Cancelled)
	})

	t.Run("Second round while busy is rejected", func(t *testing.T) {
		env := newProcessorEnv(t, domain.Judge)
		req.NoError(env.store.BeginRound("s1"))

		_, err := env.processor.RunRound(context.Background(), "s1", nil)
		req.ErrorIs(err, apperrors.ErrSessionBusy)
	})
}

func TestRunRound_FreeChat(t *testing.T) {
	req := require.New(t)

	t.Run("Every enabled participant speaks in roster order", func(t *testing.T) {
		env := newProcessorEnv(t, domain.FreeChat)
		env.generator.say("judge", "I go first.")
		env.generator.say("alice", "Then me.")
		env.generator.say("bob", "And me last.")
		env.generator.onCall = func(string) { env.tick() }

		next, err := env.processor.RunRound(context.Background(), "s1", nil)

		req.NoError(err)
		req.Nil(next)
		req.Equal([]string{"judge", "alice", "bob"}, senders(env.messages(t)))
	})

	t.Run("Each speaker sees the turns before theirs", func(t *testing.T) {
		env := newProcessorEnv(t, domain.FreeChat)
		env.generator.say("judge", "First words.")
		env.generator.onCall = func(string) { env.tick() }

		_, err := env.processor.RunRound(context.Background(), "s1", nil)
		req.NoError(err)

		env.generator.mu.Lock()
		defer env.generator.mu.Unlock()
		req.Empty(env.generator.histories["judge"][0])
		req.Len(env.generator.histories["alice"][0], 1)
		req.Len(env.generator.histories["bob"][0], 2)
	})

	t.Run("Explicit subset preserves caller order", func(t *testing.T) {
		env := newProcessorEnv(t, domain.FreeChat)
		env.generator.say("bob", "Bob speaks.")
		env.generator.say("alice", "Alice speaks.")
		env.generator.onCall = func(string) { env.tick() }

		_, err := env.processor.RunRound(context.Background(), "s1", []string{"bob", "Alice", "ghost"})

		req.NoError(err)
		req.Equal([]string{"bob", "alice"}, senders(env.messages(t)))
		req.Equal(0, env.generator.calls("judge"))
	})

	t.Run("Disabled participant is skipped", func(t *testing.T) {
		env := newProcessorEnv(t, domain.FreeChat)
		req.NoError(env.roster.SetEnabled("alice", false))
		env.generator.onCall = func(string) { env.tick() }

		_, err := env.processor.RunRound(context.Background(), "s1", nil)

		req.NoError(err)
		req.Equal(0, env.generator.calls("alice"))
	})

	t.Run("Doubled response within the window is deduplicated", func(t *testing.T) {
		env := newProcessorEnv(t, domain.FreeChat)
		env.generator.say("judge", "echo")
		env.generator.say("alice", "echo")
		env.generator.say("bob", "unique")
		// No tick: everything lands on the same instant, but senders differ
		// so only true sender+content doubles would collapse.

		_, err := env.processor.RunRound(context.Background(), "s1", nil)
		req.NoError(err)
		req.Len(env.messages(t), 3)
	})
}

func senders(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.SenderID)
	}
	return out
}

func eventsOf[T event.DomainEvent](events []event.DomainEvent) []T {
	var out []T
	for _, e := range events {
		if evt, ok := e.(T); ok {
			out = append(out, evt)
		}
	}
	return out
}
