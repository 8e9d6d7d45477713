package errors

import "fmt"

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrSessionNotFound     = fmt.Errorf("session not found")
	ErrSessionBusy         = fmt.Errorf("a round is already running for this session")
	ErrSessionStopped      = fmt.Errorf("session was stopped by the user")
	ErrParticipantNotFound = fmt.Errorf("participant not found")
	ErrParticipantDisabled = fmt.Errorf("participant is disabled")
	ErrNoPendingKick       = fmt.Errorf("no pending kick for this participant")
	ErrNoActiveVote        = fmt.Errorf("no active vote")
	ErrUnknownCandidate    = fmt.Errorf("candidate is not part of the active vote")
	ErrEmptyWords          = fmt.Errorf("no words have been found")
)
