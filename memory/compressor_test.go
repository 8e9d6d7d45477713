package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"conclave/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	calls   int
	lastLen int
	fail    bool
}

func (f *fakeSummarizer) Summarize(_ context.Context, prior string, batch []domain.Message, _ []domain.Participant) (string, error) {
	f.calls++
	f.lastLen = len(batch)
	if f.fail {
		return "", fmt.Errorf("provider down")
	}
	return fmt.Sprintf("summary(%s + %d msgs)", prior, len(batch)), nil
}

func session(count, window, margin int) *domain.Session {
	s := &domain.Session{
		ID:          "s1",
		Compression: domain.CompressionConfig{Enabled: true, Window: window, Margin: margin},
	}
	for i := 0; i < count; i++ {
		s.Messages = append(s.Messages, domain.Message{
			ID:      uuid.New(),
			Content: fmt.Sprintf("message %d", i),
		})
	}
	return s
}

func TestCompact(t *testing.T) {
	req := require.New(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("Folds everything outside the window once the margin is exceeded", func(t *testing.T) {
		sum := &fakeSummarizer{}
		c := NewCompressor(log, sum)
		s := session(45, 30, 10)

		summary, cursor, folded := c.Compact(ctx, s, nil)

		req.Equal(15, folded)
		req.Equal(s.Messages[14].ID, cursor)
		req.NotEmpty(summary)
		req.Equal(15, sum.lastLen)
	})

	t.Run("Not due below the threshold", func(t *testing.T) {
		sum := &fakeSummarizer{}
		c := NewCompressor(log, sum)
		s := session(40, 30, 10)

		_, _, folded := c.Compact(ctx, s, nil)

		req.Zero(folded)
		req.Zero(sum.calls)
	})

	t.Run("Cursor advances incrementally across passes", func(t *testing.T) {
		sum := &fakeSummarizer{}
		c := NewCompressor(log, sum)
		s := session(45, 30, 10)

		summary, cursor, folded := c.Compact(ctx, s, nil)
		req.Equal(15, folded)
		s.Summary = summary
		s.SummaryCursor = cursor

		// Thirty more messages arrive; only those past the cursor and
		// outside the window are folded.
		for i := 45; i < 75; i++ {
			s.Messages = append(s.Messages, domain.Message{ID: uuid.New(), Content: fmt.Sprintf("message %d", i)})
		}
		_, cursor2, folded2 := c.Compact(ctx, s, nil)

		req.Equal(30, folded2)
		req.Equal(s.Messages[44].ID, cursor2)
	})

	t.Run("Failure leaves state untouched", func(t *testing.T) {
		sum := &fakeSummarizer{fail: true}
		c := NewCompressor(log, sum)
		s := session(45, 30, 10)

		summary, cursor, folded := c.Compact(ctx, s, nil)

		req.Zero(folded)
		req.Empty(summary)
		req.Equal(uuid.Nil, cursor)
	})

	t.Run("Disabled compression never runs", func(t *testing.T) {
		sum := &fakeSummarizer{}
		c := NewCompressor(log, sum)
		s := session(100, 30, 10)
		s.Compression.Enabled = false

		_, _, folded := c.Compact(ctx, s, nil)

		req.Zero(folded)
		req.Zero(sum.calls)
	})
}

func TestWindow(t *testing.T) {
	req := require.New(t)

	t.Run("Full log before any summary exists", func(t *testing.T) {
		s := session(45, 30, 10)
		window, preamble := Window(s)
		req.Len(window, 45)
		req.Empty(preamble)
	})

	t.Run("Recent window plus summary preamble after compression", func(t *testing.T) {
		s := session(45, 30, 10)
		s.Summary = "older things happened"

		window, preamble := Window(s)

		req.Len(window, 30)
		req.Equal("message 15", window[0].Content)
		req.Equal("older things happened", preamble)
	})

	t.Run("Disabled compression returns the raw log", func(t *testing.T) {
		s := session(45, 30, 10)
		s.Compression.Enabled = false
		s.Summary = "stale"

		window, preamble := Window(s)

		req.Len(window, 45)
		req.Empty(preamble)
	})
}
