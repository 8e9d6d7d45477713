package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"conclave/observability"

	"github.com/shirou/gopsutil/process"
)

// HealthWorker samples the engine's own process on a fixed interval and
// pushes CPU/RAM readings into the monitor, alongside the token counters
// the monitor aggregates from domain events.
type HealthWorker struct {
	log      *slog.Logger
	monitor  *observability.Monitor
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, monitor *observability.Monitor, interval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, monitor: monitor, interval: interval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Cannot observe own process, health sampling disabled", "error", err)
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health sampling")
			return nil
		case <-ticker.C:
			cpu, err := proc.CPUPercent()
			if err != nil {
				w.log.Debug("CPU sample failed", "error", err)
				continue
			}
			ram, err := proc.MemoryPercent()
			if err != nil {
				w.log.Debug("RAM sample failed", "error", err)
				continue
			}
			w.monitor.RecordProcess(cpu, ram)
		}
	}
}
