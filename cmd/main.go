package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"conclave/ai"
	"conclave/domain"
	"conclave/domain/event"
	"conclave/internal"
	"conclave/memory"
	"conclave/moderation"
	"conclave/observability"
	"conclave/repositories"
	"conclave/runtime"
	"conclave/runtime/workers"
	"conclave/search"
	"conclave/services"
	"conclave/sink"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the engine lifecycle, and
// centralizes error reporting. This pattern is preferred over calling
// os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the REPL and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Storage (BadgerDB) & full-text index (Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.NewIndex(config.BlugeFilepath, log)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = index.Close()
	}()

	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	sessionRepository := repositories.NewSessionRepository(db)
	participantRepository := repositories.NewParticipantRepository(db)

	// 3. Engine core
	store := runtime.NewStore()
	roster := runtime.NewRoster()
	registry := runtime.NewRegistry()

	client := ai.NewClient(log, config.GenerationTimeout)
	summarizer := ai.NewRosterSummarizer(client, func() (domain.Participant, bool) {
		enabled := roster.Enabled("")
		if len(enabled) == 0 {
			return domain.Participant{}, false
		}
		return enabled[0], true
	})
	compressor := memory.NewCompressor(log, summarizer)

	moderator, err := moderation.NewModerator(config.Words(), replacement, log)
	if err != nil {
		return fmt.Errorf("moderator setup failed: %w", err)
	}

	events := make(chan event.DomainEvent, config.BufferSize)
	processor := runtime.NewProcessor(log, store, roster, client, compressor, moderator, events)
	scheduler := runtime.NewScheduler(log, store, processor, runtime.SchedulerConfig{
		ResolutionDelay: config.ResolutionDelay,
		AutoLoopMin:     config.AutoLoopMin,
		AutoLoopMax:     config.AutoLoopMax,
		MaxChain:        config.MaxChain,
		QueueSize:       config.QueueSize,
	})

	// 4. Supervision & Orchestration
	sup := workers.NewSupervisor(log)
	orchestrator := runtime.NewOrchestrator(
		log, sup, store, roster, registry, scheduler,
		sessionRepository, messageRepository, participantRepository,
		events, config.SinkTimeout,
	)

	monitor := observability.NewMonitor(log)
	orchestrator.Add(
		sink.NewDiskSink(messageRepository, sessionRepository, store.Snapshot, log),
		sink.NewSearchSink(index, log),
		sink.NewConsoleSink(os.Stdout),
		monitor,
	)
	orchestrator.AddWorker(workers.NewHealthWorker(log, monitor, config.MetricInterval))

	if err := orchestrator.Load(); err != nil {
		return fmt.Errorf("state loading failed: %w", err)
	}

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Start the Engine
	orchestrator.Start(ctx)

	if config.DebugPort > 0 {
		internal.StartDebugServer(db, config.DebugPort, internal.DefaultMapper, func() map[string]any {
			stats := monitor.GetLatest()
			return map[string]any{
				"messages":  stats.Messages,
				"rounds":    stats.Rounds,
				"cancelled": stats.CancelledRounds,
				"votes":     stats.VotesCast,
				"kicks":     stats.KicksStaged,
				"latency":   fmt.Sprintf("%.0fms", stats.AvgLatencyMs),
				"cpu%":      fmt.Sprintf("%.1f", stats.CPUPercent),
				"ram%":      fmt.Sprintf("%.1f", stats.RAMPercent),
			}
		})
		log.Info("Debug inspector listening", "port", config.DebugPort)
	}

	// 7. Terminal frontend
	service := services.NewChatService(orchestrator, index, log)
	repl := newRepl(service, monitor, os.Stdin, os.Stdout)

	errChan := make(chan error, 1)
	go func() {
		errChan <- repl.loop(ctx)
	}()

	// 8. Wait for Stop or REPL exit
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	// 9. Final Cleanup
	orchestrator.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
