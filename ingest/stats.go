package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/charithmadhuranga/fledge/errors"
	"github.com/charithmadhuranga/fledge/types"
)

// StatsStorage persists flushed per-asset and global counters. The
// storage engine implements this with an upsert into the statistics
// table; AssetExists/CreateAsset back the one-shot asset-creation
// cache described in spec §4.E.
type StatsStorage interface {
	AssetExists(ctx context.Context, assetCode string) (bool, error)
	CreateAsset(ctx context.Context, assetCode string) error
	FlushStats(ctx context.Context, perAsset map[string]int64, global map[string]int64) error
}

// Stats accumulates per-asset and global counters between flushes.
// New asset names are verified/created in the stats table on a
// one-shot basis, cached in memory so the check only runs once per
// asset for the life of the process.
type Stats struct {
	mu       sync.Mutex
	perAsset map[string]int64
	global   map[string]int64

	knownMu sync.Mutex
	known   map[string]struct{}

	storage StatsStorage
	sink    errors.ErrorSink
	logger  *slog.Logger

	flushInterval time.Duration
	stopCh        chan struct{}
	stopped       chan struct{}
}

func newStats() *Stats {
	return &Stats{
		perAsset: make(map[string]int64),
		global:   make(map[string]int64),
		known:    make(map[string]struct{}),
	}
}

// NewStatsFlusher configures a Stats accumulator with a backing
// storage flusher. Call Start to launch its dedicated flush goroutine.
func NewStatsFlusher(storage StatsStorage, flushInterval time.Duration, sink errors.ErrorSink, logger *slog.Logger) *Stats {
	s := newStats()
	s.storage = storage
	s.sink = sink
	if s.sink == nil {
		s.sink = errors.DiscardSink
	}
	s.logger = logger
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	s.flushInterval = flushInterval
	return s
}

// record increments the per-asset and global READINGS counters for a
// successfully stored batch, and ensures each asset name has been
// verified/created in the stats table (one-shot, cached).
func (s *Stats) record(readings []*types.Reading) {
	s.mu.Lock()
	for _, r := range readings {
		s.perAsset[r.AssetCode]++
		s.global["READINGS"]++
	}
	s.mu.Unlock()

	for _, r := range readings {
		s.ensureAsset(r.AssetCode)
	}
}

func (s *Stats) ensureAsset(assetCode string) {
	s.knownMu.Lock()
	_, ok := s.known[assetCode]
	if !ok {
		s.known[assetCode] = struct{}{}
	}
	s.knownMu.Unlock()
	if ok || s.storage == nil {
		return
	}

	ctx := context.Background()
	exists, err := s.storage.AssetExists(ctx, assetCode)
	if err != nil {
		s.sink.Report(errors.WrapTransient(err, "ingest", "ensureAsset", assetCode))
		return
	}
	if exists {
		return
	}
	if err := s.storage.CreateAsset(ctx, assetCode); err != nil {
		s.sink.Report(errors.WrapTransient(err, "ingest", "ensureAsset", assetCode))
	}
}

// Start launches the stats-flush goroutine, which batches pending
// counters into a single storage update on each tick.
func (s *Stats) Start(ctx context.Context) {
	s.stopCh = make(chan struct{})
	s.stopped = make(chan struct{})

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.flush(ctx)
			}
		}
	}()
}

// Stop signals the flush goroutine to exit, flushing any remaining
// counters first.
func (s *Stats) Stop(ctx context.Context) {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.stopped
	s.flush(ctx)
}

func (s *Stats) flush(ctx context.Context) {
	s.mu.Lock()
	perAsset := s.perAsset
	global := s.global
	s.perAsset = make(map[string]int64)
	s.global = make(map[string]int64)
	s.mu.Unlock()

	if len(perAsset) == 0 && len(global) == 0 {
		return
	}
	if s.storage == nil {
		return
	}
	if err := s.storage.FlushStats(ctx, perAsset, global); err != nil {
		s.sink.Report(errors.WrapTransient(err, "ingest", "flush", "stats"))
	}
}
