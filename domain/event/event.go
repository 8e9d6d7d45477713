// Package event defines the domain events emitted by the round processor
// and fanned out to sinks (disk, search index, console, telemetry).
package event

import (
	"time"

	"conclave/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	SessionID() string
}

// MessageAppended fires after a message survived deduplication and moderation
// and was appended to the session log.
type MessageAppended struct {
	Message domain.Message
}

func (e MessageAppended) SessionID() string { return e.Message.SessionID }

// RoundStarted fires when the processor enters a round.
type RoundStarted struct {
	Session  string
	Speakers []string
	At       time.Time
}

func (e RoundStarted) SessionID() string { return e.Session }

// RoundFinished fires when the processor returns to idle.
// Cancelled distinguishes a user stop from a normal completion.
type RoundFinished struct {
	Session   string
	Cancelled bool
	At        time.Time
}

func (e RoundFinished) SessionID() string { return e.Session }

// VoteStarted fires when the referee opens a vote.
type VoteStarted struct {
	Session    string
	Candidates []string
}

func (e VoteStarted) SessionID() string { return e.Session }

// VoteCast fires when a player's inline ballot is recorded.
type VoteCast struct {
	Session   string
	Voter     string
	Candidate string
}

func (e VoteCast) SessionID() string { return e.Session }

// KickStaged fires when the referee requests a removal. The request stays
// pending until explicitly confirmed or rejected.
type KickStaged struct {
	Session string
	Target  string
	Reason  string
	By      string
}

func (e KickStaged) SessionID() string { return e.Session }

// KickConfirmed fires when the user confirms a pending removal.
type KickConfirmed struct {
	Session string
	Target  string
}

func (e KickConfirmed) SessionID() string { return e.Session }

// SummaryUpdated fires after a successful compression pass.
type SummaryUpdated struct {
	Session string
	Cursor  uuid.UUID
	Folded  int
}

func (e SummaryUpdated) SessionID() string { return e.Session }

// GenerationSucceeded fires after the generation capability returned a
// usable turn. Elapsed is the wall-clock duration of the call.
type GenerationSucceeded struct {
	Session     string
	Participant string
	Elapsed     time.Duration
}

func (e GenerationSucceeded) SessionID() string { return e.Session }

// GenerationFailed fires when the generation capability returns a
// non-cancellation error. Category is one of the normalized failure kinds.
type GenerationFailed struct {
	Session     string
	Participant string
	Category    string
	At          time.Time
}

func (e GenerationFailed) SessionID() string { return e.Session }
