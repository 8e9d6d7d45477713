// Package observability aggregates engine telemetry: token spend, round
// and failure counters, and the engine's own process health.
package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"conclave/domain/event"
)

// Stats is the snapshot handed to the debug server and the CLI.
type Stats struct {
	Messages        uint64            `json:"messages"`
	Rounds          uint64            `json:"rounds"`
	CancelledRounds uint64            `json:"cancelled_rounds"`
	VotesCast       uint64            `json:"votes_cast"`
	KicksStaged     uint64            `json:"kicks_staged"`
	Compactions     uint64            `json:"compactions"`
	Generations     uint64            `json:"generations"`
	AvgLatencyMs    float64           `json:"avg_latency_ms"`
	Failures        map[string]uint64 `json:"failures"`
	CPUPercent      float64           `json:"cpu_percent"`
	RAMPercent      float32           `json:"ram_percent"`
	AllocMemMb      uint64            `json:"alloc_mem_mb"`
	NumGC           uint32            `json:"num_gc"`
}

// Monitor consumes domain events as a permanent sink and keeps cheap
// atomic counters; process health arrives separately from the health
// worker.
type Monitor struct {
	log *slog.Logger

	messages        uint64
	rounds          uint64
	cancelledRounds uint64
	votesCast       uint64
	kicksStaged     uint64
	compactions     uint64
	generations     uint64
	latencyNanos    int64

	mu       sync.RWMutex
	failures map[string]uint64
	cpu      float64
	ram      float32
}

func NewMonitor(log *slog.Logger) *Monitor {
	return &Monitor{log: log, failures: make(map[string]uint64)}
}

func (m *Monitor) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageAppended:
		atomic.AddUint64(&m.messages, 1)
	case event.RoundFinished:
		atomic.AddUint64(&m.rounds, 1)
		if evt.Cancelled {
			atomic.AddUint64(&m.cancelledRounds, 1)
		}
	case event.VoteCast:
		atomic.AddUint64(&m.votesCast, 1)
	case event.KickStaged:
		atomic.AddUint64(&m.kicksStaged, 1)
	case event.SummaryUpdated:
		atomic.AddUint64(&m.compactions, 1)
	case event.GenerationSucceeded:
		atomic.AddUint64(&m.generations, 1)
		atomic.AddInt64(&m.latencyNanos, int64(evt.Elapsed))
	case event.GenerationFailed:
		m.mu.Lock()
		m.failures[evt.Category]++
		m.mu.Unlock()
	}
	return nil
}

// RecordProcess stores the latest health sample.
func (m *Monitor) RecordProcess(cpu float64, ram float32) {
	m.mu.Lock()
	m.cpu = cpu
	m.ram = ram
	m.mu.Unlock()
}

// GetLatest assembles a consistent snapshot, including Go runtime memory
// figures.
func (m *Monitor) GetLatest() Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.mu.RLock()
	failures := make(map[string]uint64, len(m.failures))
	for k, v := range m.failures {
		failures[k] = v
	}
	cpu, ram := m.cpu, m.ram
	m.mu.RUnlock()

	generations := atomic.LoadUint64(&m.generations)
	var avgLatencyMs float64
	if generations > 0 {
		avgLatencyMs = float64(atomic.LoadInt64(&m.latencyNanos)) / float64(generations) / 1e6
	}

	return Stats{
		Messages:        atomic.LoadUint64(&m.messages),
		Rounds:          atomic.LoadUint64(&m.rounds),
		CancelledRounds: atomic.LoadUint64(&m.cancelledRounds),
		VotesCast:       atomic.LoadUint64(&m.votesCast),
		KicksStaged:     atomic.LoadUint64(&m.kicksStaged),
		Compactions:     atomic.LoadUint64(&m.compactions),
		Generations:     generations,
		AvgLatencyMs:    avgLatencyMs,
		Failures:        failures,
		CPUPercent:      cpu,
		RAMPercent:      ram,
		AllocMemMb:      mem.Alloc / 1024 / 1024,
		NumGC:           mem.NumGC,
	}
}
