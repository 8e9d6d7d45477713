package runtime

import (
	"strings"
	"sync"
	"time"

	"conclave/domain"
	apperrors "conclave/errors"

	"github.com/google/uuid"
)

// dedupWindow is the span within which an identical sender+content pair is
// treated as a doubled network response and silently dropped.
const dedupWindow = 2 * time.Second

// Store is the explicit, directly-owned session state store. All session
// mutation funnels through it, so the round processor never touches shared
// mutable state behind the scheduler's back.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Tests use it to exercise the
// deduplication window deterministically.
func (st *Store) WithClock(now func() time.Time) *Store {
	st.now = now
	return st
}

func (st *Store) Put(session domain.Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := session
	st.sessions[s.ID] = &s
}

// Snapshot returns a defensive copy: the message slice is duplicated so a
// caller can iterate while the round appends.
func (st *Store) Snapshot(id string) (domain.Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return domain.Session{}, apperrors.ErrSessionNotFound
	}
	out := *s
	out.Messages = make([]domain.Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out, nil
}

func (st *Store) List() []domain.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]domain.Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		copied := *s
		copied.Messages = append([]domain.Message(nil), s.Messages...)
		out = append(out, copied)
	}
	return out
}

// Append adds a message to the log unless it is an exact sender+content
// duplicate of the prior entry within the dedup window. It reports whether
// the message was actually stored.
func (st *Store) Append(msg domain.Message) (domain.Message, bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[msg.SessionID]
	if !ok {
		return domain.Message{}, false, apperrors.ErrSessionNotFound
	}
	if msg.Empty() {
		return domain.Message{}, false, nil
	}

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = st.now().UTC()
	}

	if last := len(s.Messages) - 1; last >= 0 {
		prior := s.Messages[last]
		if prior.SenderID == msg.SenderID &&
			strings.TrimSpace(prior.Content) == strings.TrimSpace(msg.Content) &&
			msg.CreatedAt.Sub(prior.CreatedAt) < dedupWindow {
			return domain.Message{}, false, nil
		}
	}

	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = msg.CreatedAt
	return msg, true, nil
}

// BeginRound enforces the one-active-round-per-session invariant.
func (st *Store) BeginRound(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	if s.Processing {
		return apperrors.ErrSessionBusy
	}
	s.Processing = true
	return nil
}

func (st *Store) EndRound(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		s.Processing = false
		s.ActiveSpeaker = ""
	}
}

func (st *Store) SetActiveSpeaker(id, participantID string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		s.ActiveSpeaker = participantID
	}
}

// SetStopped flips the user-stopped flag. The flag is distinct from idle:
// once set, no automatic continuation may start a round until new user
// input clears it.
func (st *Store) SetStopped(id string, stopped bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		s.StoppedByUser = stopped
	}
}

func (st *Store) Stopped(id string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	return ok && s.StoppedByUser
}

func (st *Store) Processing(id string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	return ok && s.Processing
}

// StageKick records a pending removal unless the target is already staged.
func (st *Store) StageKick(id string, kick domain.KickRequest) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok || s.KickStaged(kick.TargetID) {
		return false
	}
	s.PendingKicks = append(s.PendingKicks, kick)
	return true
}

// TakeKick removes and returns the pending kick for the target.
func (st *Store) TakeKick(id, targetID string) (domain.KickRequest, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return domain.KickRequest{}, apperrors.ErrSessionNotFound
	}
	for i, k := range s.PendingKicks {
		if k.TargetID == targetID {
			s.PendingKicks = append(s.PendingKicks[:i], s.PendingKicks[i+1:]...)
			return k, nil
		}
	}
	return domain.KickRequest{}, apperrors.ErrNoPendingKick
}

func (st *Store) KickStaged(id, targetID string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	return ok && s.KickStaged(targetID)
}

// StartVote resets the vote state wholesale. An already-active vote is
// replaced: the new vote wins.
func (st *Store) StartVote(id string, candidates []string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		s.Vote.Reset(candidates)
	}
}

// CastBallot records one voter's choice against the open vote. The
// candidate token is matched case-insensitively against the candidate list;
// the canonical candidate name is stored. Last write wins.
func (st *Store) CastBallot(id, voter, candidate string) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return "", apperrors.ErrSessionNotFound
	}
	if !s.Vote.Active {
		return "", apperrors.ErrNoActiveVote
	}
	// A session reloaded from disk may carry an open vote with no ballots
	// yet; the map is dropped by serialization and must be rebuilt here.
	if s.Vote.Ballots == nil {
		s.Vote.Ballots = make(map[string]string)
	}
	for _, c := range s.Vote.Candidates {
		if strings.EqualFold(c, strings.TrimSpace(candidate)) {
			s.Vote.Ballots[voter] = c
			return c, nil
		}
	}
	return "", apperrors.ErrUnknownCandidate
}

func (st *Store) CloseVote(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		s.Vote.Close()
	}
}

// ApplySummary installs a successful compression result and advances the
// cursor to the last folded message.
func (st *Store) ApplySummary(id, summary string, cursor uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		s.Summary = summary
		s.SummaryCursor = cursor
	}
}

func (st *Store) AddUsage(id string, usage domain.TokenUsage) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		s.Usage.Add(usage)
	}
}

func (st *Store) SetRefereeContext(id string, ctx domain.RefereeContext) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	s.Referee = ctx
	return nil
}
