package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"conclave/domain"
	"conclave/domain/event"

	"github.com/gookit/color"
)

// ConsoleSink renders the live transcript for the terminal frontend.
// Whispers, system notices and referee directives each get their own color
// so a crowded table stays readable.
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

func (c *ConsoleSink) Consume(_ context.Context, e event.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch evt := e.(type) {
	case event.MessageAppended:
		c.printMessage(evt.Message)
	case event.VoteStarted:
		fmt.Fprintln(c.out, color.Yellow.Sprintf("-- vote opened: %s --", strings.Join(evt.Candidates, ", ")))
	case event.VoteCast:
		fmt.Fprintln(c.out, color.Yellow.Sprintf("-- %s voted for %s --", evt.Voter, evt.Candidate))
	case event.KickStaged:
		reason := evt.Reason
		if reason == "" {
			reason = "no reason given"
		}
		fmt.Fprintln(c.out, color.Red.Sprintf("-- %s wants to remove %s (%s), confirm or reject --", evt.By, evt.Target, reason))
	case event.KickConfirmed:
		fmt.Fprintln(c.out, color.Red.Sprintf("-- %s removed --", evt.Target))
	case event.SummaryUpdated:
		fmt.Fprintln(c.out, color.Gray.Sprintf("-- %d older messages folded into the summary --", evt.Folded))
	case event.GenerationFailed:
		fmt.Fprintln(c.out, color.Red.Sprintf("-- %s failed (%s) --", evt.Participant, evt.Category))
	case event.RoundFinished:
		if evt.Cancelled {
			fmt.Fprintln(c.out, color.Gray.Sprint("-- round stopped --"))
		}
	}
	return nil
}

func (c *ConsoleSink) printMessage(msg domain.Message) {
	sender := msg.SenderID
	switch {
	case msg.IsError:
		fmt.Fprintln(c.out, color.Red.Sprintf("[%s] %s", sender, msg.Content))
	case msg.SenderID == domain.SystemSenderID:
		fmt.Fprintln(c.out, color.Gray.Sprintf("[%s] %s", sender, msg.Content))
	case msg.SenderID == domain.UserSenderID:
		fmt.Fprintln(c.out, color.Cyan.Sprintf("[%s] %s", sender, msg.Content))
	case !msg.Broadcast():
		fmt.Fprintln(c.out, color.Magenta.Sprintf("[%s -> %s] %s", sender, msg.Recipient, msg.Content))
	default:
		fmt.Fprintf(c.out, "%s %s\n", color.Green.Sprintf("[%s]", sender), msg.Content)
	}
	for _, m := range msg.Media {
		fmt.Fprintln(c.out, color.Gray.Sprintf("    (%s: %s)", m.Kind, m.Path))
	}
}
