package ai

import (
	"context"
	"fmt"

	"conclave/domain"
)

// BoundSummarizer pins the generic client to the participant configured for
// summarization so it satisfies contract.Summarizer.
type BoundSummarizer struct {
	client      *Client
	participant domain.Participant
}

func NewBoundSummarizer(client *Client, participant domain.Participant) BoundSummarizer {
	return BoundSummarizer{client: client, participant: participant}
}

func (s BoundSummarizer) Summarize(ctx context.Context, prior string, batch []domain.Message, roster []domain.Participant) (string, error) {
	return s.client.Summarize(ctx, s.participant, prior, batch, roster)
}

// RosterSummarizer picks the summarizing participant at call time, so a
// roster edit (key rotation, disabling the usual summarizer) applies on the
// very next compression pass.
type RosterSummarizer struct {
	client *Client
	pick   func() (domain.Participant, bool)
}

func NewRosterSummarizer(client *Client, pick func() (domain.Participant, bool)) RosterSummarizer {
	return RosterSummarizer{client: client, pick: pick}
}

func (s RosterSummarizer) Summarize(ctx context.Context, prior string, batch []domain.Message, roster []domain.Participant) (string, error) {
	p, ok := s.pick()
	if !ok {
		return "", fmt.Errorf("no enabled participant available for summarization")
	}
	return s.client.Summarize(ctx, p, prior, batch, roster)
}
