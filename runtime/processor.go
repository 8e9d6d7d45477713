// Package runtime drives turn orchestration: who speaks next, under which
// view of the log, and what happens to the directives a speaker emits.
// It contains no prompt engineering and no UI concerns.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conclave/ai"
	"conclave/contract"
	"conclave/domain"
	"conclave/domain/event"
	apperrors "conclave/errors"
	"conclave/memory"
	"conclave/moderation"
	"conclave/protocol"
	"conclave/visibility"
)

// Processor runs one Round at a time per session: a referee turn, player
// turns, and an optional referee resolution. All state transitions are
// synchronous; only the generation call suspends.
type Processor struct {
	log        *slog.Logger
	store      *Store
	roster     *Roster
	generator  contract.Generator
	compressor *memory.Compressor
	moderator  *moderation.Moderator
	events     chan<- event.DomainEvent
	now        func() time.Time
}

func NewProcessor(log *slog.Logger, store *Store, roster *Roster,
	generator contract.Generator, compressor *memory.Compressor,
	moderator *moderation.Moderator, events chan<- event.DomainEvent) *Processor {
	return &Processor{
		log:        log,
		store:      store,
		roster:     roster,
		generator:  generator,
		compressor: compressor,
		moderator:  moderator,
		events:     events,
		now:        time.Now,
	}
}

// WithClock overrides the time source, mirroring Store.WithClock.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// RunRound executes one full round. The returned speaker list is non-empty
// when a referee resolution handed the floor onward; the scheduler decides
// whether that continuation may actually run.
//
// Cancellation is not an error: the round ends quietly in idle and nothing
// produced after the cancellation is appended.
func (p *Processor) RunRound(ctx context.Context, sessionID string, speakers []string) ([]string, error) {
	if err := p.store.BeginRound(sessionID); err != nil {
		return nil, err
	}
	cancelled := false
	defer func() {
		p.store.EndRound(sessionID)
		p.emit(event.RoundFinished{Session: sessionID, Cancelled: cancelled, At: p.now().UTC()})
	}()

	p.emit(event.RoundStarted{Session: sessionID, Speakers: speakers, At: p.now().UTC()})
	p.compact(ctx, sessionID)

	snapshot, err := p.store.Snapshot(sessionID)
	if err != nil {
		return nil, err
	}

	var next []string
	if snapshot.Mode.Refereed() && snapshot.RefereeID != "" {
		next, err = p.refereedRound(ctx, snapshot, speakers)
	} else {
		err = p.freeChatRound(ctx, snapshot, speakers)
	}

	if errors.Is(err, context.Canceled) {
		cancelled = true
		return nil, nil
	}
	return next, err
}

// refereedRound implements the judge-mode sequence: referee turn, speaker
// resolution, player turns, then a referee resolution if anyone acted.
func (p *Processor) refereedRound(ctx context.Context, s domain.Session, explicit []string) ([]string, error) {
	opening, err := p.refereeTurn(ctx, s.ID, s.RefereeID)
	if err != nil {
		return nil, err
	}

	order := p.resolveSpeakers(s.ID, s.RefereeID, opening.Next, explicit)

	acted := false
	for _, id := range order {
		spoke, err := p.playerTurn(ctx, s.ID, id)
		if err != nil {
			return nil, err
		}
		acted = acted || spoke
	}

	if !acted {
		return nil, nil
	}

	resolution, err := p.refereeTurn(ctx, s.ID, s.RefereeID)
	if err != nil {
		return nil, err
	}

	// Only an explicit hand-off chains another round; an unspecified
	// resolution ends the exchange and waits for the user or the ambient
	// loop.
	switch resolution.Next.Kind {
	case protocol.NextAll, protocol.NextSome:
		return p.resolveSpeakers(s.ID, s.RefereeID, resolution.Next, nil), nil
	default:
		return nil, nil
	}
}

// freeChatRound walks an ordered speaker list; each participant sees all
// prior participants' output from the same round because the view is
// re-projected per turn.
func (p *Processor) freeChatRound(ctx context.Context, s domain.Session, explicit []string) error {
	var order []string
	if len(explicit) > 0 {
		// Explicit subset: preserve caller order, drop unknown tokens.
		for _, token := range explicit {
			if member, ok := protocol.Resolve(token, p.roster.All()); ok {
				order = append(order, member.ID)
			}
		}
	} else {
		for _, member := range p.roster.Enabled(s.RefereeID) {
			order = append(order, member.ID)
		}
	}

	for _, id := range order {
		if _, err := p.playerTurn(ctx, s.ID, id); err != nil {
			return err
		}
	}
	return nil
}

// refereeTurn generates with the omniscient view, parses the control
// directives, and applies them: staged kick, vote start, message segments.
func (p *Processor) refereeTurn(ctx context.Context, sessionID, refereeID string) (protocol.RefereeResult, error) {
	referee, ok := p.roster.Get(refereeID)
	if !ok || !referee.Enabled {
		return protocol.RefereeResult{}, fmt.Errorf("%w: referee %s", apperrors.ErrParticipantDisabled, refereeID)
	}

	snapshot, err := p.store.Snapshot(sessionID)
	if err != nil {
		return protocol.RefereeResult{}, err
	}

	window, preamble := memory.Window(&snapshot)
	history, alliances := visibility.Omniscient(window, p.roster.All())

	role := ai.RoleJudge
	if snapshot.Mode == domain.Narrator {
		role = ai.RoleNarrator
	}

	p.store.SetActiveSpeaker(sessionID, refereeID)
	resp, err := p.generate(ctx, sessionID, referee, ai.Request{
		Participant: referee,
		Role:        role,
		History:     history,
		Alliances:   alliances,
		Mode:        snapshot.Mode,
		Referee:     snapshot.Referee,
		Vote:        &snapshot.Vote,
		Memory:      preamble,
	})
	if err != nil {
		return protocol.RefereeResult{}, err
	}

	result := protocol.ParseReferee(resp.Content)
	p.applyRefereeResult(sessionID, refereeID, result, resp.Media)
	return result, nil
}

func (p *Processor) applyRefereeResult(sessionID, refereeID string, result protocol.RefereeResult, media []domain.MediaRef) {
	roster := p.roster.All()

	if result.Kick != nil {
		if target, ok := protocol.Resolve(result.Kick.RawTarget, roster); ok {
			staged := p.store.StageKick(sessionID, domain.KickRequest{
				TargetID:    target.ID,
				Reason:      result.Kick.Reason,
				RequestedBy: refereeID,
				At:          p.now().UTC(),
			})
			if staged {
				p.emit(event.KickStaged{
					Session: sessionID,
					Target:  target.ID,
					Reason:  result.Kick.Reason,
					By:      refereeID,
				})
			}
		} else {
			p.log.Debug("Dropping kick with unresolvable target", "target", result.Kick.RawTarget)
		}
	}

	if len(result.VoteStart) > 0 {
		p.store.StartVote(sessionID, result.VoteStart)
		p.emit(event.VoteStarted{Session: sessionID, Candidates: result.VoteStart})
	}

	for i, segment := range result.Segments {
		recipient := segment.Recipient
		if recipient != "" {
			// Private markers may carry a display name; store the canonical
			// id when it resolves, otherwise keep the raw token so alliance
			// tags still work.
			if member, ok := protocol.Resolve(recipient, roster); ok {
				recipient = member.ID
			}
		}

		msg := domain.Message{
			SessionID: sessionID,
			SenderID:  refereeID,
			Recipient: recipient,
			Content:   p.censor(segment.Content),
			CreatedAt: p.now().UTC(),
		}
		if i == 0 {
			msg.Media = media
		}
		p.append(msg)
	}
}

// playerTurn generates one participant's turn over its filtered view.
// It reports whether the participant actually produced something (a stored
// message or a recorded ballot).
func (p *Processor) playerTurn(ctx context.Context, sessionID, participantID string) (bool, error) {
	// Live configuration read: a participant disabled mid-round is skipped
	// without restarting the round.
	participant, ok := p.roster.Get(participantID)
	if !ok || !participant.Enabled {
		return false, nil
	}
	if p.store.KickStaged(sessionID, participantID) {
		return false, nil
	}

	snapshot, err := p.store.Snapshot(sessionID)
	if err != nil {
		return false, err
	}

	window, preamble := memory.Window(&snapshot)
	history := visibility.Project(participant, window, p.roster.All())

	p.store.SetActiveSpeaker(sessionID, participantID)
	resp, err := p.generate(ctx, sessionID, participant, ai.Request{
		Participant: participant,
		Role:        ai.RolePlayer,
		History:     history,
		Mode:        snapshot.Mode,
		Referee:     snapshot.Referee,
		Vote:        &snapshot.Vote,
		Memory:      preamble,
	})
	if err != nil {
		return false, err
	}

	parsed := protocol.ParsePlayer(resp.Content)

	acted := false
	if parsed.Vote != "" {
		if candidate, err := p.store.CastBallot(sessionID, participantID, parsed.Vote); err == nil {
			acted = true
			p.emit(event.VoteCast{Session: sessionID, Voter: participantID, Candidate: candidate})
		} else {
			p.log.Debug("Ignoring ballot", "voter", participantID, "candidate", parsed.Vote, "reason", err)
		}
	}

	recipient := parsed.Recipient
	if recipient != "" {
		if member, ok := protocol.Resolve(recipient, p.roster.All()); ok {
			recipient = member.ID
		}
	}

	stored := p.append(domain.Message{
		SessionID: sessionID,
		SenderID:  participantID,
		Recipient: recipient,
		Content:   p.censor(parsed.Content),
		Inner:     parsed.Inner,
		Media:     resp.Media,
		CreatedAt: p.now().UTC(),
	})
	return acted || stored, nil
}

// generate wraps the capability call with cancellation and failure
// handling. A cancelled call discards any partial result. A failure appends
// exactly one system-authored message with a normalized category and aborts
// the round.
func (p *Processor) generate(ctx context.Context, sessionID string, participant domain.Participant, req ai.Request) (ai.Response, error) {
	started := p.now()
	resp, err := p.generator.Generate(ctx, req)
	if ctx.Err() != nil {
		return ai.Response{}, context.Canceled
	}
	if err != nil {
		category := apperrors.Categorize(err)
		p.log.Warn("Generation failed", "participant", participant.ID, "category", category, "error", err)
		p.append(domain.Message{
			SessionID: sessionID,
			SenderID:  domain.SystemSenderID,
			Content:   fmt.Sprintf("%s could not respond (%s)", participant.Name, category),
			CreatedAt: p.now().UTC(),
			IsError:   true,
		})
		p.emit(event.GenerationFailed{
			Session:     sessionID,
			Participant: participant.ID,
			Category:    string(category),
			At:          p.now().UTC(),
		})
		return ai.Response{}, fmt.Errorf("generation for %s: %w", participant.ID, err)
	}

	p.emit(event.GenerationSucceeded{
		Session:     sessionID,
		Participant: participant.ID,
		Elapsed:     p.now().Sub(started),
	})
	if resp.Usage != nil {
		p.store.AddUsage(sessionID, *resp.Usage)
		p.roster.AddUsage(participant.ID, *resp.Usage)
	}
	return resp, nil
}

// resolveSpeakers expands a next-speaker directive into concrete ids.
// Unspecified falls back to the explicit subset the caller provided, then
// to "everyone" while a game or vote is running, then to nobody.
func (p *Processor) resolveSpeakers(sessionID, refereeID string, next protocol.NextSpeakers, explicit []string) []string {
	roster := p.roster.All()

	switch next.Kind {
	case protocol.NextNone:
		return nil
	case protocol.NextAll:
		return p.enabledIDs(refereeID)
	case protocol.NextSome:
		var out []string
		for _, token := range next.IDs {
			member, ok := protocol.Resolve(token, roster)
			if !ok || member.ID == refereeID {
				continue
			}
			out = append(out, member.ID)
		}
		return out
	}

	if len(explicit) > 0 {
		var out []string
		for _, token := range explicit {
			if member, ok := protocol.Resolve(token, roster); ok && member.ID != refereeID {
				out = append(out, member.ID)
			}
		}
		return out
	}

	snapshot, err := p.store.Snapshot(sessionID)
	if err != nil {
		return nil
	}
	if snapshot.Referee.Status == domain.RefereeActive || snapshot.Vote.Active {
		return p.enabledIDs(refereeID)
	}
	return nil
}

func (p *Processor) enabledIDs(exclude string) []string {
	var out []string
	for _, member := range p.roster.Enabled(exclude) {
		out = append(out, member.ID)
	}
	return out
}

// compact runs the opportunistic compression pass. Failures are logged and
// otherwise invisible.
func (p *Processor) compact(ctx context.Context, sessionID string) {
	if p.compressor == nil {
		return
	}
	snapshot, err := p.store.Snapshot(sessionID)
	if err != nil {
		return
	}
	summary, cursor, folded := p.compressor.Compact(ctx, &snapshot, p.roster.All())
	if folded == 0 {
		return
	}
	p.store.ApplySummary(sessionID, summary, cursor)
	p.emit(event.SummaryUpdated{Session: sessionID, Cursor: cursor, Folded: folded})
}

func (p *Processor) censor(content string) string {
	if p.moderator == nil {
		return content
	}
	censored, words := p.moderator.Censor(content)
	if len(words) > 0 {
		p.log.Debug("Censored generated output", "words", len(words))
	}
	return censored
}

// append stores the message (ghost messages and near-duplicates are
// silently skipped) and emits MessageAppended on success.
func (p *Processor) append(msg domain.Message) bool {
	stored, ok, err := p.store.Append(msg)
	if err != nil {
		p.log.Error("Append failed", "session", msg.SessionID, "error", err)
		return false
	}
	if !ok {
		return false
	}
	p.emit(event.MessageAppended{Message: stored})
	return true
}

// emit publishes without blocking; a full channel drops the event, which
// only degrades observability, never conversation state.
func (p *Processor) emit(e event.DomainEvent) {
	if p.events == nil {
		return
	}
	select {
	case p.events <- e:
	default:
		p.log.Warn("Event channel full, dropping event", "session", e.SessionID())
	}
}
