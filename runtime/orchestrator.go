package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"conclave/contract"
	"conclave/domain"
	"conclave/domain/event"
	"conclave/runtime/workers"

	"github.com/google/uuid"
)

// Orchestrator assembles the engine: the session store, the live roster,
// the scheduler, the event pipeline, and the supervised workers. It is the
// single entry point the service layer talks to.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	store          *Store
	roster         *Roster
	registry       *Registry
	scheduler      *Scheduler
	supervisor     contract.ISupervisor
	events         chan event.DomainEvent
	permanentSinks []contract.EventSink
	extraWorkers   []contract.Worker
	sinkTimeout    time.Duration

	sessions     contract.ISessionRepository
	messages     contract.IMessageRepository
	participants contract.IParticipantRepository
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	store *Store, roster *Roster, registry *Registry, scheduler *Scheduler,
	sessions contract.ISessionRepository, messages contract.IMessageRepository,
	participants contract.IParticipantRepository,
	events chan event.DomainEvent, sinkTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		log:          log,
		supervisor:   supervisor,
		store:        store,
		roster:       roster,
		registry:     registry,
		scheduler:    scheduler,
		sessions:     sessions,
		messages:     messages,
		participants: participants,
		events:       events,
		sinkTimeout:  sinkTimeout,
	}
}

// Add registers permanent sinks fed by the fanout (disk, search index,
// console, monitor).
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// AddWorker registers extra supervised workers (health sampling, etc).
func (o *Orchestrator) AddWorker(w ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extraWorkers = append(o.extraWorkers, w...)
}

// Load hydrates the store and roster from the repositories so a restart
// resumes every persisted session.
func (o *Orchestrator) Load() error {
	roster, err := o.participants.ListParticipants()
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	o.roster.Load(roster)

	sessions, err := o.sessions.ListSessions()
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	for _, s := range sessions {
		log, err := o.messages.GetMessages(s.ID)
		if err != nil {
			return fmt.Errorf("load messages for %s: %w", s.ID, err)
		}
		s.Messages = log
		// A crash mid-round must not wedge the session.
		s.Processing = false
		s.ActiveSpeaker = ""
		o.store.Put(s)
	}
	o.log.Info(fmt.Sprintf("Loaded %d sessions and %d participants", len(sessions), len(roster)))
	return nil
}

// Start wires the fanout and all workers under the supervisor. It returns
// immediately; the supervisor owns the goroutines until ctx ends.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	fanout := workers.NewEventFanout(o.log, o.events, o.registry, o.sinkTimeout, o.permanentSinks...)
	o.supervisor.Add(fanout, o.scheduler)
	for _, w := range o.extraWorkers {
		o.supervisor.Add(w)
	}
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	go o.supervisor.Run(ctx)
}

// Stop initiates a graceful shutdown.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}

// PostUserMessage appends human input and triggers a round. New user input
// clears the user-stopped flag: the conversation may flow again.
func (o *Orchestrator) PostUserMessage(sessionID, content string, media []domain.MediaRef, speakers []string) error {
	o.scheduler.Resume(sessionID)

	msg := domain.Message{
		SessionID: sessionID,
		SenderID:  domain.UserSenderID,
		Content:   content,
		Media:     media,
	}
	stored, ok, err := o.store.Append(msg)
	if err != nil {
		return err
	}
	if ok {
		o.emit(event.MessageAppended{Message: stored})
	}

	o.scheduler.Enqueue(Task{SessionID: sessionID, Speakers: speakers})
	return nil
}

// StopSession aborts the in-flight round and suppresses automatic
// continuations until the next user input.
func (o *Orchestrator) StopSession(sessionID string) {
	o.scheduler.Stop(sessionID)
}

// ConfirmKick applies a staged removal: the participant is disabled (never
// deleted) and the table is told.
func (o *Orchestrator) ConfirmKick(sessionID, targetID string) error {
	kick, err := o.store.TakeKick(sessionID, targetID)
	if err != nil {
		return err
	}
	if err := o.roster.SetEnabled(targetID, false); err != nil {
		return err
	}
	if p, ok := o.roster.Get(targetID); ok {
		if err := o.participants.SaveParticipant(p); err != nil {
			o.log.Warn("Failed to persist kicked participant", "id", targetID, "error", err)
		}
	}

	target, _ := o.roster.Get(targetID)
	notice := fmt.Sprintf("%s has been removed from the table", target.Name)
	if kick.Reason != "" {
		notice = fmt.Sprintf("%s (%s)", notice, kick.Reason)
	}
	stored, ok, err := o.store.Append(domain.Message{
		SessionID: sessionID,
		SenderID:  domain.SystemSenderID,
		Content:   notice,
	})
	if err == nil && ok {
		o.emit(event.MessageAppended{Message: stored})
	}
	o.emit(event.KickConfirmed{Session: sessionID, Target: targetID})
	return nil
}

// RejectKick drops a staged removal without side effects.
func (o *Orchestrator) RejectKick(sessionID, targetID string) error {
	_, err := o.store.TakeKick(sessionID, targetID)
	return err
}

// CreateSession registers a new session in the store and persists the
// snapshot immediately.
func (o *Orchestrator) CreateSession(title string, mode domain.Mode, refereeID string, compression domain.CompressionConfig) (domain.Session, error) {
	now := time.Now().UTC()
	session := domain.Session{
		ID:          uuid.NewString(),
		Title:       title,
		Mode:        mode,
		RefereeID:   refereeID,
		Referee:     domain.RefereeContext{Mode: domain.RefereeGeneral, Status: domain.RefereeIdle},
		Compression: compression,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.sessions.SaveSession(session); err != nil {
		return domain.Session{}, err
	}
	o.store.Put(session)
	return session, nil
}

func (o *Orchestrator) GetSession(id string) (domain.Session, error) {
	return o.store.Snapshot(id)
}

func (o *Orchestrator) ListSessions() []domain.Session {
	return o.store.List()
}

// SetRefereeContext is the explicit mode switch: the only way besides the
// referee's own directives to mutate the referee context.
func (o *Orchestrator) SetRefereeContext(sessionID string, ctx domain.RefereeContext) error {
	return o.store.SetRefereeContext(sessionID, ctx)
}

// UpsertParticipant persists configuration and makes it visible to any
// in-flight loop on its next iteration.
func (o *Orchestrator) UpsertParticipant(p domain.Participant) error {
	if err := o.participants.SaveParticipant(p); err != nil {
		return err
	}
	o.roster.Upsert(p)
	return nil
}

func (o *Orchestrator) Roster() []domain.Participant {
	return o.roster.All()
}

// Subscribe attaches an external sink (UI) to one session's events.
func (o *Orchestrator) Subscribe(subscriberID, sessionID string, sink contract.EventSink) {
	o.registry.Subscribe(subscriberID, sessionID, sink)
}

func (o *Orchestrator) Unsubscribe(subscriberID, sessionID string) {
	o.registry.Unsubscribe(subscriberID, sessionID)
}

func (o *Orchestrator) emit(e event.DomainEvent) {
	select {
	case o.events <- e:
	default:
		o.log.Warn("Event channel full, dropping event", "session", e.SessionID())
	}
}
