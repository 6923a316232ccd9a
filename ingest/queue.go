// Package ingest implements the south-side ingest queue and drain state
// machine described in spec §4.E: producers append readings under a
// lock, a drain goroutine swaps the queue for an empty buffer and hands
// the batch through the filter pipeline to storage, and reconfiguration
// swaps the pipeline itself without ever holding the queue lock and the
// pipeline lock at the same time.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/charithmadhuranga/fledge/errors"
	"github.com/charithmadhuranga/fledge/filter"
	"github.com/charithmadhuranga/fledge/metric"
	"github.com/charithmadhuranga/fledge/types"
)

// Storage is the subset of the storage engine the ingest queue depends
// on. Kept as a narrow interface so tests can substitute a fake without
// standing up Postgres.
type Storage interface {
	AppendReadings(ctx context.Context, readings []*types.Reading) (int, error)
}

// Config controls the drain thread's wake conditions.
type Config struct {
	// Threshold is the queue size that wakes the drain thread early.
	Threshold int
	// Timeout bounds how long the drain thread sleeps between wakes
	// even if Threshold is never reached.
	Timeout time.Duration
}

// DefaultConfig returns the wake conditions New also falls back to for a
// non-positive field: threshold 500 readings, timeout one second.
func DefaultConfig() Config {
	return Config{Threshold: 500, Timeout: time.Second}
}

// Queue is the ingest queue plus its drain goroutine. The queue has no
// capacity limit: producers append until shutdown, and Threshold only
// decides when the drain goroutine wakes. Stats flushing runs separately
// (Stats.Start). Locks are always taken in the fixed order
// pipelineMutex -> qMutex -> statsMutex (spec §5); this type never
// holds qMutex while acquiring pipelineMutex.
type Queue struct {
	cfg     Config
	storage Storage
	metrics *metric.Metrics
	sink    errors.ErrorSink
	logger  *slog.Logger

	qMutex   sync.Mutex
	qCond    *sync.Cond
	queue    []*types.Reading
	shutdown bool
	timedOut bool

	pipelineMutex sync.Mutex
	pipeline      *filter.Pipeline

	stats *Stats

	group    *errgroup.Group
	stopTick chan struct{}
}

// New builds a Queue. storage must not be nil; metrics/sink/logger may
// be nil, in which case sensible no-op defaults are used.
func New(cfg Config, storage Storage, metrics *metric.Metrics, sink errors.ErrorSink, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = errors.DiscardSink
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	q := &Queue{
		cfg:     cfg,
		storage: storage,
		metrics: metrics,
		sink:    sink,
		logger:  logger,
		stats:   newStats(),
	}
	q.qCond = sync.NewCond(&q.qMutex)
	return q
}

// UseStats swaps in a pre-configured Stats accumulator, e.g. one built
// by NewStatsFlusher with a storage-backed flusher. Call before Start;
// the queue otherwise runs with an unconnected, in-memory-only Stats
// that never persists its counters.
func (q *Queue) UseStats(s *Stats) {
	q.stats = s
}

// Ingest queues a single reading. Fails fast without queuing once
// shutdown has begun; the caller is expected to count that as a
// discard.
func (q *Queue) Ingest(r *types.Reading) error {
	return q.IngestBatch([]*types.Reading{r})
}

// IngestBatch queues a batch of readings under one lock acquisition.
func (q *Queue) IngestBatch(readings []*types.Reading) error {
	q.qMutex.Lock()
	if q.shutdown {
		q.qMutex.Unlock()
		if q.metrics != nil {
			q.metrics.RecordDiscarded("*", len(readings))
		}
		return errors.ErrShutdownRequested
	}

	q.queue = append(q.queue, readings...)
	size := len(q.queue)
	q.qMutex.Unlock()

	if size >= q.cfg.Threshold {
		q.qCond.Signal()
	}
	return nil
}

// QueueLength is an observational estimate; it never blocks producers.
func (q *Queue) QueueLength() int {
	q.qMutex.Lock()
	defer q.qMutex.Unlock()
	return len(q.queue)
}

// SetPipeline atomically swaps in a new filter pipeline, draining any
// queued readings through the previous pipeline first so nothing is
// lost or double-processed across the swap. It never holds qMutex
// while blocked on pipelineMutex, and vice versa.
func (q *Queue) SetPipeline(ctx context.Context, next *filter.Pipeline) {
	q.pipelineMutex.Lock()
	defer q.pipelineMutex.Unlock()

	q.drainOnce(ctx)
	q.pipeline = next
}

// Start launches the drain goroutine and its timeout-broadcast helper
// under a shared errgroup.Group, mirroring the teacher's
// errgroup-supervised background modules. It returns immediately;
// callers should defer Stop.
func (q *Queue) Start(ctx context.Context) {
	q.group = &errgroup.Group{}
	q.stopTick = make(chan struct{})

	q.group.Go(func() error {
		q.broadcastTicker(q.stopTick)
		return nil
	})
	q.group.Go(func() error {
		q.drainLoop(ctx)
		return nil
	})
}

// Stop requests shutdown, wakes the drain goroutine, and waits for its
// current batch and the broadcast helper to finish. Producers called
// after Stop returns without queuing.
func (q *Queue) Stop() {
	q.qMutex.Lock()
	q.shutdown = true
	q.qMutex.Unlock()
	q.qCond.Broadcast()

	if q.stopTick != nil {
		close(q.stopTick)
	}
	if q.group != nil {
		_ = q.group.Wait()
	}
}

// broadcastTicker bounds sync.Cond's lack of a timed wait: it
// periodically sets timedOut and broadcasts so the drain thread never
// sleeps past cfg.Timeout even when Threshold is never reached (spec
// §4.E). Setting timedOut under qMutex, rather than just broadcasting,
// is what lets drainLoop's wait-loop predicate actually distinguish a
// deadline-driven wake from a spurious one instead of just re-checking
// the same unchanged size/shutdown condition and going back to sleep.
func (q *Queue) broadcastTicker(stop <-chan struct{}) {
	ticker := time.NewTicker(q.cfg.Timeout)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			q.qMutex.Lock()
			q.timedOut = true
			q.qMutex.Unlock()
			q.qCond.Broadcast()
		}
	}
}

func (q *Queue) drainLoop(ctx context.Context) {
	for {
		q.qMutex.Lock()
		for len(q.queue) < q.cfg.Threshold && !q.shutdown && !q.timedOut {
			q.qCond.Wait()
		}
		q.timedOut = false
		shuttingDown := q.shutdown
		q.qMutex.Unlock()

		q.pipelineMutex.Lock()
		q.drainOnce(ctx)
		q.pipelineMutex.Unlock()

		if shuttingDown {
			q.qMutex.Lock()
			remaining := len(q.queue) > 0
			q.qMutex.Unlock()
			if !remaining {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// drainOnce performs one swap-and-process cycle. Caller must hold
// pipelineMutex; drainOnce takes and releases qMutex internally, never
// holding both locks at once.
func (q *Queue) drainOnce(ctx context.Context) {
	q.qMutex.Lock()
	if len(q.queue) == 0 {
		q.qMutex.Unlock()
		return
	}
	batch := q.queue
	q.queue = nil
	q.qMutex.Unlock()

	batchID := uuid.NewString()
	start := time.Now()
	out, err := q.runPipeline(ctx, batch)
	if err != nil {
		q.logger.Error("filter pipeline failed, discarding batch", "error", err, "size", len(batch), "batch_id", batchID)
		q.sink.Report(errors.WrapInvalid(err, "ingest", "drainOnce", "filter pipeline"))
		if q.metrics != nil {
			q.metrics.RecordDiscarded("*", len(batch))
		}
		return
	}

	n, err := q.storage.AppendReadings(ctx, out)
	if q.metrics != nil {
		q.metrics.RecordDrainDuration(time.Since(start))
	}
	if err != nil {
		q.logger.Error("appendReadings failed, discarding batch", "error", err, "size", len(out), "batch_id", batchID)
		q.sink.Report(err)
		if q.metrics != nil {
			q.metrics.RecordDiscarded("*", len(out))
		}
		return
	}

	q.stats.record(out[:n])
	q.logger.Debug("drained batch", "batch_id", batchID, "size", n, "duration", time.Since(start))
	if q.metrics != nil {
		for asset, count := range countByAsset(out[:n]) {
			q.metrics.RecordIngested(asset, count)
		}
	}
}

func (q *Queue) runPipeline(ctx context.Context, batch []*types.Reading) ([]*types.Reading, error) {
	if q.pipeline.IsEmpty() {
		return batch, nil
	}
	out, err := q.pipeline.Ingest(ctx, filter.ReadingSet(batch))
	if err != nil {
		return nil, err
	}
	return []*types.Reading(out), nil
}

func countByAsset(readings []*types.Reading) map[string]int {
	counts := make(map[string]int)
	for _, r := range readings {
		counts[r.AssetCode]++
	}
	return counts
}
