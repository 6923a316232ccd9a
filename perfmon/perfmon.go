// Package perfmon implements the per-name performance monitor described
// in spec §4.D: producers record a value under a name, a housekeeper
// periodically snapshots and flushes accumulated stats through the
// storage engine, and a lock-free fast path lets collect() short-circuit
// entirely when disabled.
package perfmon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charithmadhuranga/fledge/errors"
	"github.com/charithmadhuranga/fledge/metric"
)

// monitor accumulates count/sum/min/max for one named counter under its
// own mutex, independent of every other monitor's lock.
type monitor struct {
	mu    sync.Mutex
	count int64
	sum   float64
	min   float64
	max   float64
}

func (m *monitor) record(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		m.min, m.max = value, value
	} else {
		if value < m.min {
			m.min = value
		}
		if value > m.max {
			m.max = value
		}
	}
	m.sum += value
	m.count++
}

// snapshot returns (min, avg, max) and resets the monitor. Returns
// ok=false if no samples were recorded since the last flush.
func (m *monitor) snapshot() (min, avg, max float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return 0, 0, 0, false
	}
	min, max = m.min, m.max
	avg = m.sum / float64(m.count)
	m.count, m.sum, m.min, m.max = 0, 0, 0, 0
	return min, avg, max, true
}

// Flusher persists a flushed snapshot batch. The storage engine
// implements this by inserting into the perfmon table tagged with the
// owning service name.
type Flusher interface {
	FlushPerfMon(ctx context.Context, service string, snapshots map[string]Snapshot) error
}

// Snapshot is one flushed (min, avg, max) triple for a named counter.
type Snapshot struct {
	Min, Avg, Max float64
}

// Monitor is the process-wide performance monitor for one service.
// collect() is a no-op fast path when disabled; the disabled->enabled
// transition is observable to concurrent producers without taking any
// lock, via an atomic.Bool (spec §4.D).
type Monitor struct {
	service string
	logger  *slog.Logger
	sink    errors.ErrorSink
	flusher Flusher
	metrics *metric.Metrics

	collecting atomic.Bool

	mapMu    sync.Mutex
	monitors map[string]*monitor

	flushInterval time.Duration
	stopCh        chan struct{}
	stopped       chan struct{}
}

// New builds a Monitor. flushInterval controls the housekeeper's tick
// period; flusher and metrics may be nil in tests, in which case
// flushed snapshots are simply dropped after being recorded in metrics.
func New(service string, flushInterval time.Duration, flusher Flusher, metrics *metric.Metrics, logger *slog.Logger, sink errors.ErrorSink) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = errors.DiscardSink
	}
	if flushInterval <= 0 {
		flushInterval = 15 * time.Second
	}
	return &Monitor{
		service:       service,
		logger:        logger,
		sink:          sink,
		flusher:       flusher,
		metrics:       metrics,
		monitors:      make(map[string]*monitor),
		flushInterval: flushInterval,
	}
}

// SetCollecting toggles the fast path. The transition is a plain atomic
// store; Collect's disabled check is a plain atomic load, so neither
// side ever blocks on the other.
func (m *Monitor) SetCollecting(enabled bool) {
	m.collecting.Store(enabled)
}

// Collecting reports whether Collect currently records samples.
func (m *Monitor) Collecting() bool {
	return m.collecting.Load()
}

// Collect records value under name. No-op when collection is disabled.
func (m *Monitor) Collect(name string, value float64) {
	if !m.collecting.Load() {
		return
	}
	mon := m.monitorFor(name)
	mon.record(value)
}

func (m *Monitor) monitorFor(name string) *monitor {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	mon, ok := m.monitors[name]
	if !ok {
		mon = &monitor{}
		m.monitors[name] = mon
	}
	return mon
}

// Start runs the housekeeper loop until ctx is cancelled or Stop is
// called. It ticks every flushInterval, snapshotting and flushing all
// monitors that recorded at least one sample.
func (m *Monitor) Start(ctx context.Context) {
	m.stopCh = make(chan struct{})
	m.stopped = make(chan struct{})

	go func() {
		defer close(m.stopped)
		ticker := time.NewTicker(m.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.flush(ctx)
			}
		}
	}()
}

// Stop signals the housekeeper to exit and waits for it to do so.
func (m *Monitor) Stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	<-m.stopped
}

func (m *Monitor) flush(ctx context.Context) {
	m.mapMu.Lock()
	names := make([]string, 0, len(m.monitors))
	for name := range m.monitors {
		names = append(names, name)
	}
	m.mapMu.Unlock()

	batch := make(map[string]Snapshot, len(names))
	for _, name := range names {
		mon := m.monitorFor(name)
		min, avg, max, ok := mon.snapshot()
		if !ok {
			continue
		}
		batch[name] = Snapshot{Min: min, Avg: avg, Max: max}
		if m.metrics != nil {
			m.metrics.RecordPerfMon(name, min, avg, max)
		}
	}
	if len(batch) == 0 || m.flusher == nil {
		return
	}
	if err := m.flusher.FlushPerfMon(ctx, m.service, batch); err != nil {
		wrapped := errors.WrapTransient(err, "perfmon", "flush", m.service)
		m.logger.Error("perfmon flush failed", "service", m.service, "error", wrapped)
		m.sink.Report(wrapped)
	}
}
