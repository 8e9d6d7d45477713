package domain

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects how rounds are driven for a session.
type Mode string

const (
	FreeChat Mode = "FREE_CHAT"
	Judge    Mode = "JUDGE"
	Narrator Mode = "NARRATOR"
)

// Refereed reports whether the session runs under a special-role participant.
func (m Mode) Refereed() bool {
	return m == Judge || m == Narrator
}

// RefereeMode qualifies what kind of authority the referee exercises.
type RefereeMode string

const (
	RefereeGeneral RefereeMode = "GENERAL"
	RefereeGame    RefereeMode = "GAME"
	RefereeDebate  RefereeMode = "DEBATE"
)

// RefereeStatus tracks whether a game or debate is currently running.
type RefereeStatus string

const (
	RefereeIdle   RefereeStatus = "IDLE"
	RefereeActive RefereeStatus = "ACTIVE"
)

// RefereeContext is mutated only by the referee's own directives or an
// explicit mode switch, never by ordinary participants.
type RefereeContext struct {
	Mode   RefereeMode   `json:"mode"`
	Status RefereeStatus `json:"status"`
	Topic  string        `json:"topic,omitempty"`
}

// VoteState holds one open vote. Starting a new vote resets it wholesale.
// One ballot per voter, last write wins.
type VoteState struct {
	Active     bool              `json:"active"`
	Candidates []string          `json:"candidates,omitempty"`
	Ballots    map[string]string `json:"ballots,omitempty"`
}

// Reset opens a fresh vote over the given candidates, dropping duplicates
// while preserving order.
func (v *VoteState) Reset(candidates []string) {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		unique = append(unique, c)
	}
	v.Active = true
	v.Candidates = unique
	v.Ballots = make(map[string]string)
}

// Close ends the vote but keeps the ballots for inspection.
func (v *VoteState) Close() {
	v.Active = false
}

// KickRequest is a staged, unconfirmed removal. Kicks are never auto-applied;
// only explicit confirmation disables the participant.
type KickRequest struct {
	TargetID    string    `json:"target_id"`
	Reason      string    `json:"reason,omitempty"`
	RequestedBy string    `json:"requested_by"`
	At          time.Time `json:"at"`
}

// CompressionConfig controls opportunistic history folding.
// Compression triggers once the log exceeds Window+Margin messages.
type CompressionConfig struct {
	Enabled bool `json:"enabled"`
	Window  int  `json:"window"`
	Margin  int  `json:"margin"`
}

// Session is the aggregate the round processor operates on.
//
// Invariants:
//   - at most one Round may be active (Processing) at a time;
//   - StoppedByUser, once set, suppresses any automatic re-entry into a new
//     Round until new user input clears it;
//   - Messages are append-only and totally ordered.
type Session struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Mode          Mode              `json:"mode"`
	RefereeID     string            `json:"referee_id,omitempty"`
	Referee       RefereeContext    `json:"referee"`
	Vote          VoteState         `json:"vote"`
	Compression   CompressionConfig `json:"compression"`
	Summary       string            `json:"summary,omitempty"`
	SummaryCursor uuid.UUID         `json:"summary_cursor,omitempty"`
	Usage         TokenUsage        `json:"usage"`
	Messages      []Message         `json:"-"`
	PendingKicks  []KickRequest     `json:"pending_kicks,omitempty"`
	Processing    bool              `json:"-"`
	ActiveSpeaker string            `json:"-"`
	StoppedByUser bool              `json:"stopped_by_user"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// KickStaged reports whether a pending removal targets the participant.
func (s *Session) KickStaged(participantID string) bool {
	for _, k := range s.PendingKicks {
		if k.TargetID == participantID {
			return true
		}
	}
	return false
}

// LastMessage returns the most recent entry, if any.
func (s *Session) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
