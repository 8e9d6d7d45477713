package visibility

import (
	"testing"

	"conclave/domain"

	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	req := require.New(t)

	roster := []domain.Participant{
		{ID: "wolf-1", Alliance: "wolves"},
		{ID: "wolf-2", Alliance: "wolves"},
		{ID: "seer", Alliance: ""},
		{ID: "judge"},
	}
	wolf1 := roster[0]
	wolf2 := roster[1]
	seer := roster[2]

	log := []domain.Message{
		{SenderID: "judge", Content: "Night falls."},
		{SenderID: "wolf-1", Content: "I was at the mill.", Inner: "we strike tonight"},
		{SenderID: "judge", Recipient: "seer", Content: "You may peek at one player."},
		{SenderID: "wolf-2", Recipient: "wolves", Content: "target the baker"},
		{SenderID: "seer", Content: "I slept well."},
	}

	t.Run("Own messages pass through unchanged", func(t *testing.T) {
		view := Project(wolf1, log, roster)
		req.Equal("we strike tonight", view[1].Inner)
		req.Equal("wolf-1", view[1].SenderID)
	})

	t.Run("Addressed message reaches only the recipient", func(t *testing.T) {
		seerView := Project(seer, log, roster)
		req.Len(seerView, 4)
		req.Equal("You may peek at one player.", seerView[2].Content)

		wolfView := Project(wolf1, log, roster)
		for _, msg := range wolfView {
			req.NotEqual("You may peek at one player.", msg.Content)
		}
	})

	t.Run("Alliance tag recipient reaches every member", func(t *testing.T) {
		wolf1View := Project(wolf1, log, roster)
		req.Contains(contents(wolf1View), "target the baker")

		seerView := Project(seer, log, roster)
		req.NotContains(contents(seerView), "target the baker")
	})

	t.Run("Hidden state is redacted outside the alliance", func(t *testing.T) {
		seerView := Project(seer, log, roster)
		req.Equal(domain.RedactedState, seerView[1].Inner)

		wolf2View := Project(wolf2, log, roster)
		req.Equal("we strike tonight", wolf2View[1].Inner)
	})

	t.Run("Relative order is preserved", func(t *testing.T) {
		view := Project(wolf1, log, roster)
		req.Equal([]string{
			"Night falls.",
			"I was at the mill.",
			"target the baker",
			"I slept well.",
		}, contents(view))
	})

	t.Run("Projection is deterministic", func(t *testing.T) {
		first := Project(seer, log, roster)
		second := Project(seer, log, roster)
		req.Equal(first, second)
	})

	t.Run("Message empty after redaction is dropped", func(t *testing.T) {
		ghostLog := []domain.Message{{SenderID: "wolf-1", Inner: "only inner state"}}
		view := Project(seer, ghostLog, roster)
		req.Empty(view)
	})
}

func contents(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, msg.Content)
	}
	return out
}

func TestOmniscient(t *testing.T) {
	req := require.New(t)

	roster := []domain.Participant{
		{ID: "wolf-1", Alliance: "wolves"},
		{ID: "seer"},
	}
	log := []domain.Message{
		{SenderID: "wolf-1", Recipient: "wolves", Content: "secret"},
		{SenderID: "seer", Content: "public", Inner: "hidden"},
	}

	view, alliances := Omniscient(log, roster)

	req.Len(view, 2)
	req.Equal("secret", view[0].Content)
	req.Equal("hidden", view[1].Inner)
	req.Equal(map[string]string{"wolf-1": "wolves"}, alliances)

	// The returned slice is a copy; mutating it must not leak back.
	view[0].Content = "tampered"
	req.Equal("secret", log[0].Content)
}
