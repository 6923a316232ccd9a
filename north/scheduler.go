// Package north drives the fetcher+emitter loop described in spec §5: a
// single thread that, on a fixed interval, pulls the next block of
// persisted readings from the storage engine, hands each to the OMF
// emitter, and synchronously POSTs the resulting batch north — tracking
// how far it has gotten with a stream cursor so a restart resumes
// instead of re-sending.
package north

import (
	"context"
	"log/slog"
	"time"

	"github.com/charithmadhuranga/fledge/errors"
	"github.com/charithmadhuranga/fledge/metric"
	"github.com/charithmadhuranga/fledge/north/omf"
)

// ReadingSource is the storage-engine surface the scheduler needs: fetch
// a block of readings after a cursor, and persist how far forwarding has
// progressed. storage.Engine satisfies this.
type ReadingSource interface {
	FetchReadings(ctx context.Context, after int64, limit int) ([]map[string]any, error)
	StreamProgress(ctx context.Context, stream string) (int64, error)
	SetStreamProgress(ctx context.Context, stream string, lastID int64) error
}

// Config configures the scheduler loop.
type Config struct {
	// StreamName identifies this forwarder's progress cursor, allowing
	// more than one north stream to read the same readings table
	// independently.
	StreamName string
	// PollInterval is how often the scheduler checks for new readings
	// once it has drained the table down to the newest row.
	PollInterval time.Duration
	// BlockSize is the max rows fetched per FetchReadings call, per
	// spec §4.C's fetchReadings(fromId, blockSize) signature.
	BlockSize int
}

// DefaultConfig returns reasonable polling defaults.
func DefaultConfig(streamName string) Config {
	return Config{
		StreamName:   streamName,
		PollInterval: 2 * time.Second,
		BlockSize:    1000,
	}
}

// PerfCollector receives raw samples for the performance monitor (spec
// §4.D). perfmon.Monitor satisfies this; a scheduler built without one
// simply skips sampling.
type PerfCollector interface {
	Collect(name string, value float64)
}

// Scheduler is the north process's fetcher+emitter thread (spec §5).
// It is not safe for concurrent Run calls: the OMF emitter it drives is
// documented single-threaded (spec §5), and the stream cursor it
// advances would race across concurrent loops.
type Scheduler struct {
	cfg     Config
	source  ReadingSource
	emitter *omf.Emitter
	metrics *metric.Metrics
	perfmon PerfCollector
	logger  *slog.Logger
	sink    errors.ErrorSink
}

// New builds a Scheduler.
func New(cfg Config, source ReadingSource, emitter *omf.Emitter, metrics *metric.Metrics, logger *slog.Logger, sink errors.ErrorSink) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 1000
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "north-omf"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = errors.DiscardSink
	}
	return &Scheduler{cfg: cfg, source: source, emitter: emitter, metrics: metrics, logger: logger, sink: sink}
}

// UsePerfMon attaches a performance monitor that samples container/data
// POST durations, batched through it into the storage layer alongside
// every other component's counters (spec §4.D: "runs beside everything
// and writes through C").
func (s *Scheduler) UsePerfMon(p PerfCollector) {
	s.perfmon = p
}

// Run drives the fetch/emit/send loop until ctx is cancelled. Each tick
// is one drain batch: it repeats FetchReadings/send until a block comes
// back short of BlockSize, then sleeps for PollInterval, mirroring the
// south drain thread's "batch, don't trickle" shape from spec §4.E on
// the north side.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for {
			sent, full, err := s.forwardOnce(ctx)
			if err != nil {
				s.sink.Report(err)
				break
			}
			if sent == 0 || !full {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// forwardOnce fetches and sends a single block. It returns the number of
// readings sent and whether the block returned was full (a hint that
// more rows may be waiting behind it).
func (s *Scheduler) forwardOnce(ctx context.Context) (int, bool, error) {
	cursor, err := s.source.StreamProgress(ctx, s.cfg.StreamName)
	if err != nil {
		return 0, false, err
	}

	rows, err := s.source.FetchReadings(ctx, cursor, s.cfg.BlockSize)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}

	fragments := make([]string, 0, len(rows))
	lastID := cursor
	byAsset := map[string]int{}

	for _, row := range rows {
		reading, hints, err := RowToReading(row)
		if err != nil {
			s.logger.Error("skipping unforwardable row", "error", err)
			continue
		}
		fragment, err := s.emitter.ProcessReading(reading, hints)
		if err != nil {
			s.logger.Error("failed to build OMF fragment", "asset", reading.AssetCode, "error", err)
			continue
		}
		if fragment != "" {
			fragments = append(fragments, fragment)
		}
		byAsset[reading.AssetCode]++
		if id, ok := row["id"].(int64); ok && id > lastID {
			lastID = id
		}
	}

	if ok, err := s.timedContainers(ctx); !ok {
		if err != nil {
			return 0, false, err
		}
		// A rejected (bad-request) container batch is non-fatal but must
		// prevent the corresponding value batch from going out (spec
		// §4.F, §7's flushContainers caller contract).
		return 0, len(rows) == s.cfg.BlockSize, nil
	}

	sent := 0
	if len(fragments) > 0 {
		ok, err := s.timedSend(ctx, fragments)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, len(rows) == s.cfg.BlockSize, nil
		}
		sent = len(rows)
	}

	if err := s.source.SetStreamProgress(ctx, s.cfg.StreamName, lastID); err != nil {
		return sent, false, err
	}

	if s.metrics != nil {
		for asset, n := range byAsset {
			s.metrics.RecordNorthSent(asset, n)
		}
	}

	return sent, len(rows) == s.cfg.BlockSize, nil
}

func (s *Scheduler) timedContainers(ctx context.Context) (bool, error) {
	start := time.Now()
	ok, err := s.emitter.FlushContainers(ctx)
	s.recordDuration("container", start)
	if err != nil {
		s.recordFailure("container")
		return false, err
	}
	if !ok {
		s.recordFailure("container")
	}
	return ok, nil
}

func (s *Scheduler) timedSend(ctx context.Context, fragments []string) (bool, error) {
	start := time.Now()
	ok, err := s.emitter.SendBatch(ctx, fragments)
	s.recordDuration("data", start)
	if err != nil {
		s.recordFailure("data")
		return false, err
	}
	if !ok {
		s.recordFailure("data")
	}
	return ok, nil
}

func (s *Scheduler) recordDuration(messageType string, start time.Time) {
	if s.perfmon != nil {
		s.perfmon.Collect("omf_"+messageType+"_send_ms", float64(time.Since(start).Milliseconds()))
	}
	if s.metrics != nil {
		s.metrics.RecordNorthSendDuration(messageType, time.Since(start))
	}
}

func (s *Scheduler) recordFailure(messageType string) {
	if s.metrics != nil {
		s.metrics.RecordNorthFailure(messageType)
	}
}
