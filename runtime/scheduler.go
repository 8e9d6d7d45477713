package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	apperrors "conclave/errors"
)

// Task asks the scheduler to run one round. Auto marks continuations the
// engine scheduled for itself (referee-resolution hand-off, ambient loop);
// those are vetoed by the user-stopped flag, user-triggered tasks are not.
type Task struct {
	SessionID string
	Speakers  []string
	Auto      bool
}

// SchedulerConfig bundles the timing knobs.
type SchedulerConfig struct {
	// ResolutionDelay spaces out chained rounds triggered by a referee
	// resolution.
	ResolutionDelay time.Duration
	// AutoLoopMin/Max bound the random ambient auto-continuation delay.
	// A zero AutoLoopMax disables the ambient loop.
	AutoLoopMin time.Duration
	AutoLoopMax time.Duration
	// MaxChain caps consecutive automatic continuations; past it the
	// engine waits for user input (no-progress policy).
	MaxChain int
	// QueueSize bounds the task channel.
	QueueSize int
}

// Scheduler owns per-session cancellation tokens and the ambient
// auto-continuation timers, and invokes the round processor. It runs as a
// supervised worker: Enqueue feeds its queue, Run drains it.
//
// The cancellation tokens live in an explicit map keyed by session id, so
// starting a round for session A has no effect on an in-flight round for
// session B.
type Scheduler struct {
	mu        sync.Mutex
	log       *slog.Logger
	store     *Store
	processor *Processor
	cfg       SchedulerConfig
	tasks     chan Task
	cancels   map[string]context.CancelFunc
	timers    map[string]*time.Timer
	chains    map[string]int
	rnd       *rand.Rand
	wg        sync.WaitGroup
}

func NewScheduler(log *slog.Logger, store *Store, processor *Processor, cfg SchedulerConfig) *Scheduler {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxChain <= 0 {
		cfg.MaxChain = 8
	}
	return &Scheduler{
		log:       log,
		store:     store,
		processor: processor,
		cfg:       cfg,
		tasks:     make(chan Task, cfg.QueueSize),
		cancels:   make(map[string]context.CancelFunc),
		timers:    make(map[string]*time.Timer),
		chains:    make(map[string]int),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Enqueue requests a round. A full queue drops the task with a warning;
// the ambient loop will retry later.
func (s *Scheduler) Enqueue(task Task) {
	s.invalidateTimer(task.SessionID)
	select {
	case s.tasks <- task:
	default:
		s.log.Warn(fmt.Sprintf("Task queue full, dropping round for session %s", task.SessionID))
	}
}

// Run drains the task queue until the context ends. Each round executes in
// its own goroutine so one session's in-flight generation never blocks
// another session's round.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			s.wg.Wait()
			return nil
		case task := <-s.tasks:
			s.launch(ctx, task)
		}
	}
}

// Stop cancels the session's in-flight round, discards any partial result,
// and raises the user-stopped flag so no automatic continuation resumes the
// conversation behind the user's back.
func (s *Scheduler) Stop(sessionID string) {
	s.store.SetStopped(sessionID, true)
	s.invalidateTimer(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[sessionID]; ok {
		cancel()
	}
	s.chains[sessionID] = 0
}

// Resume clears the user-stopped flag; called on new user input.
func (s *Scheduler) Resume(sessionID string) {
	s.store.SetStopped(sessionID, false)
	s.mu.Lock()
	s.chains[sessionID] = 0
	s.mu.Unlock()
}

func (s *Scheduler) launch(ctx context.Context, task Task) {
	id := task.SessionID

	if task.Auto && s.store.Stopped(id) {
		s.log.Debug("Skipping automatic round for stopped session", "session", id)
		return
	}
	if !task.Auto {
		s.mu.Lock()
		s.chains[id] = 0
		s.mu.Unlock()
	}

	s.mu.Lock()
	if _, busy := s.cancels[id]; busy {
		s.mu.Unlock()
		s.log.Debug("Round already in flight, dropping task", "session", id)
		return
	}
	roundCtx, cancel := context.WithCancel(ctx)
	s.cancels[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
			cancel()
		}()

		next, err := s.processor.RunRound(roundCtx, id, task.Speakers)
		if err != nil {
			if !errors.Is(err, apperrors.ErrSessionBusy) {
				s.log.Warn("Round ended with error", "session", id, "error", err)
				// The session is idle again; the ambient loop may retry
				// after a failed generation.
				s.ArmAutoLoop(id)
			}
			return
		}
		s.afterRound(id, next)
	}()
}

// afterRound either chains the referee's hand-off or re-arms the ambient
// loop. The user-stopped flag is re-checked here: a stop issued while the
// round was finishing wins.
func (s *Scheduler) afterRound(id string, next []string) {
	if len(next) > 0 && !s.store.Stopped(id) {
		s.mu.Lock()
		s.chains[id]++
		depth := s.chains[id]
		s.mu.Unlock()

		if depth <= s.cfg.MaxChain {
			time.AfterFunc(s.cfg.ResolutionDelay, func() {
				s.Enqueue(Task{SessionID: id, Speakers: next, Auto: true})
			})
			return
		}
		s.log.Info("Continuation cap reached, waiting for user input", "session", id, "depth", depth)
	}
	s.ArmAutoLoop(id)
}

// ArmAutoLoop (re)arms the ambient timer for a session. Preconditions:
// the session is idle, has at least one message, is not user-stopped, and
// the loop is enabled. Any existing timer is invalidated first so a
// precondition change never leaves duplicate timers behind.
func (s *Scheduler) ArmAutoLoop(sessionID string) {
	s.invalidateTimer(sessionID)

	if s.cfg.AutoLoopMax <= 0 {
		return
	}
	snapshot, err := s.store.Snapshot(sessionID)
	if err != nil || snapshot.Processing || snapshot.StoppedByUser || len(snapshot.Messages) == 0 {
		return
	}

	delay := s.cfg.AutoLoopMin
	if spread := s.cfg.AutoLoopMax - s.cfg.AutoLoopMin; spread > 0 {
		s.mu.Lock()
		delay += time.Duration(s.rnd.Int63n(int64(spread)))
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.timers[sessionID] = time.AfterFunc(delay, func() {
		s.Enqueue(Task{SessionID: sessionID, Auto: true})
	})
	s.mu.Unlock()
}

func (s *Scheduler) invalidateTimer(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[sessionID]; ok {
		timer.Stop()
		delete(s.timers, sessionID)
	}
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	for _, cancel := range s.cancels {
		cancel()
	}
}
