package search

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"conclave/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	index, err := NewIndex(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func TestIndex_Search(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := openTestIndex(t)

	seed := []domain.Message{
		{ID: uuid.New(), SessionID: "s1", SenderID: "alice", Content: "I saw the seer near the old mill", CreatedAt: time.Now()},
		{ID: uuid.New(), SessionID: "s1", SenderID: "bob", Content: "The baker was home all night", CreatedAt: time.Now()},
		{ID: uuid.New(), SessionID: "s2", SenderID: "carol", Content: "The seer is lying about the mill", CreatedAt: time.Now()},
	}
	for _, msg := range seed {
		req.NoError(index.IndexMessage(msg))
	}

	t.Run("Match across all sessions", func(t *testing.T) {
		hits, err := index.Search(ctx, "", "seer", 10)
		req.NoError(err)
		req.Len(hits, 2)
	})

	t.Run("Scoped to one session", func(t *testing.T) {
		hits, err := index.Search(ctx, "s1", "seer", 10)
		req.NoError(err)
		req.Len(hits, 1)
		req.Equal("alice", hits[0].Sender)
		req.Equal("s1", hits[0].SessionID)
	})

	t.Run("Stored fields are rebuilt", func(t *testing.T) {
		hits, err := index.Search(ctx, "s1", "baker", 10)
		req.NoError(err)
		req.Len(hits, 1)
		req.Equal("The baker was home all night", hits[0].Content)
		req.Equal(seed[1].ID.String(), hits[0].MessageID)
		req.NotEmpty(hits[0].Lang)
	})

	t.Run("No match yields no hits", func(t *testing.T) {
		hits, err := index.Search(ctx, "", "dragon", 10)
		req.NoError(err)
		req.Empty(hits)
	})

	t.Run("Reindexing the same id replaces the document", func(t *testing.T) {
		msg := seed[0]
		msg.Content = "I retract everything about the mill"
		req.NoError(index.IndexMessage(msg))

		hits, err := index.Search(ctx, "s1", "retract", 10)
		req.NoError(err)
		req.Len(hits, 1)
	})
}
