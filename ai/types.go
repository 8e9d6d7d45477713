// Package ai defines the request and response shapes exchanged with the
// external generation capability, plus a default HTTP implementation.
package ai

import "conclave/domain"

// Role tells the capability which hat the participant wears for this turn.
type Role string

const (
	RolePlayer   Role = "PLAYER"
	RoleJudge    Role = "JUDGE"
	RoleNarrator Role = "NARRATOR"
)

// Request carries everything a single generation turn needs.
//
// History is already projected for the participant: the round processor runs
// the visibility filter (or the omniscient view for the referee) before
// building the request. Alliances is only populated for the omniscient view
// and maps sender ids to alliance tags.
type Request struct {
	Participant domain.Participant
	Role        Role
	History     []domain.Message
	Alliances   map[string]string
	Mode        domain.Mode
	Referee     domain.RefereeContext
	Vote        *domain.VoteState
	Memory      string
}

// Response is one generated turn. Usage may be nil when the provider does
// not report counters.
type Response struct {
	Content string
	Usage   *domain.TokenUsage
	Media   []domain.MediaRef
}
