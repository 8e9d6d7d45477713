// Package memory folds old messages into a rolling summary so long sessions
// keep fitting into a model's context window.
package memory

import (
	"context"
	"fmt"
	"log/slog"

	"conclave/contract"
	"conclave/domain"

	"github.com/google/uuid"
)

// Compressor runs once at the start of each round, before any generation
// call. Failures are non-fatal and invisible to the conversation: the
// session simply continues on the unreduced window until the next
// successful attempt.
type Compressor struct {
	log        *slog.Logger
	summarizer contract.Summarizer
}

func NewCompressor(log *slog.Logger, summarizer contract.Summarizer) *Compressor {
	return &Compressor{log: log, summarizer: summarizer}
}

// Compact summarizes the slice strictly after the last-summarized cursor and
// up to (total - window). On success it returns the new summary, the new
// cursor, and the folded count; otherwise folded is 0 and the caller leaves
// session state untouched.
func (c *Compressor) Compact(ctx context.Context, s *domain.Session, roster []domain.Participant) (summary string, cursor uuid.UUID, folded int) {
	if !due(s) {
		return "", uuid.Nil, 0
	}

	batch := pendingSlice(s)
	if len(batch) == 0 {
		return "", uuid.Nil, 0
	}

	next, err := c.summarizer.Summarize(ctx, s.Summary, batch, roster)
	if err != nil {
		c.log.Warn(fmt.Sprintf("Compression failed for session %s, keeping raw window", s.ID), "error", err)
		return "", uuid.Nil, 0
	}

	return next, batch[len(batch)-1].ID, len(batch)
}

// Window returns the raw messages a generation call should see once
// compression is active: the most recent window only. When compression is
// disabled or not yet triggered, the full log is returned and the summary
// preamble is empty.
func Window(s *domain.Session) ([]domain.Message, string) {
	if !s.Compression.Enabled || s.Summary == "" {
		return s.Messages, ""
	}
	size := s.Compression.Window
	if size <= 0 || len(s.Messages) <= size {
		return s.Messages, s.Summary
	}
	return s.Messages[len(s.Messages)-size:], s.Summary
}

func due(s *domain.Session) bool {
	if !s.Compression.Enabled || s.Compression.Window <= 0 {
		return false
	}
	return len(s.Messages) > s.Compression.Window+s.Compression.Margin
}

// pendingSlice computes the messages strictly after the cursor, up to
// (total - window).
func pendingSlice(s *domain.Session) []domain.Message {
	start := 0
	if s.SummaryCursor != uuid.Nil {
		for i, msg := range s.Messages {
			if msg.ID == s.SummaryCursor {
				start = i + 1
				break
			}
		}
	}
	end := len(s.Messages) - s.Compression.Window
	if end <= start {
		return nil
	}
	return s.Messages[start:end]
}
