package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains platform-level metrics for the ingest/storage/forward pipeline.
type Metrics struct {
	// Ingest queue metrics
	ReadingsIngested  *prometheus.CounterVec
	ReadingsDiscarded *prometheus.CounterVec
	QueueDepth        *prometheus.GaugeVec
	DrainDuration     *prometheus.HistogramVec

	// Filter pipeline metrics
	FilterDuration *prometheus.HistogramVec
	FilterErrors   *prometheus.CounterVec

	// Storage engine metrics
	StorageInsertDuration *prometheus.HistogramVec
	StorageErrors         *prometheus.CounterVec
	StorageConnected      prometheus.Gauge

	// North (OMF) metrics
	NorthSentTotal    *prometheus.CounterVec
	NorthSendDuration *prometheus.HistogramVec
	NorthFailures     *prometheus.CounterVec

	// Performance monitor mirror
	PerfMonValue *prometheus.GaugeVec

	// Process metrics
	HealthCheckStatus *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all pipeline metrics registered
// under the "fledge" namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		ReadingsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fledge",
				Subsystem: "ingest",
				Name:      "readings_total",
				Help:      "Total number of readings accepted into the ingest queue",
			},
			[]string{"asset"},
		),

		ReadingsDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fledge",
				Subsystem: "ingest",
				Name:      "readings_discarded_total",
				Help:      "Total number of readings discarded by the ingest queue (after shutdown, or on filter or storage failure)",
			},
			[]string{"asset"},
		),

		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fledge",
				Subsystem: "ingest",
				Name:      "queue_depth",
				Help:      "Current number of readings waiting in the ingest queue's data buffer",
			},
			[]string{"buffer"},
		),

		DrainDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fledge",
				Subsystem: "ingest",
				Name:      "drain_duration_seconds",
				Help:      "Time spent draining the ingest queue's swap buffer into the filter pipeline",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{},
		),

		FilterDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fledge",
				Subsystem: "filter",
				Name:      "duration_seconds",
				Help:      "Time spent applying a single filter to a batch of readings",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"filter"},
		),

		FilterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fledge",
				Subsystem: "filter",
				Name:      "errors_total",
				Help:      "Total number of filter application failures",
			},
			[]string{"filter"},
		),

		StorageInsertDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fledge",
				Subsystem: "storage",
				Name:      "insert_duration_seconds",
				Help:      "Time spent appending a batch of readings to the storage engine",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"table"},
		),

		StorageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fledge",
				Subsystem: "storage",
				Name:      "errors_total",
				Help:      "Total number of storage engine operation failures",
			},
			[]string{"operation"},
		),

		StorageConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fledge",
				Subsystem: "storage",
				Name:      "connected",
				Help:      "Storage engine connection status (0=disconnected, 1=connected)",
			},
		),

		NorthSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fledge",
				Subsystem: "north",
				Name:      "readings_sent_total",
				Help:      "Total number of readings successfully forwarded to the OMF endpoint",
			},
			[]string{"asset"},
		),

		NorthSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fledge",
				Subsystem: "north",
				Name:      "send_duration_seconds",
				Help:      "Time spent sending an OMF payload to the remote endpoint",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"message_type"},
		),

		NorthFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fledge",
				Subsystem: "north",
				Name:      "send_failures_total",
				Help:      "Total number of OMF send failures",
			},
			[]string{"message_type"},
		),

		PerfMonValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fledge",
				Subsystem: "perfmon",
				Name:      "value",
				Help:      "Latest min/avg/max snapshot of a named performance counter",
			},
			[]string{"counter", "stat"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fledge",
				Subsystem: "health",
				Name:      "status",
				Help:      "Component health status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),
	}
}

// RecordIngested increments the accepted-reading counter for an asset.
func (c *Metrics) RecordIngested(asset string, n int) {
	c.ReadingsIngested.WithLabelValues(asset).Add(float64(n))
}

// RecordDiscarded increments the discarded-reading counter for an asset.
func (c *Metrics) RecordDiscarded(asset string, n int) {
	c.ReadingsDiscarded.WithLabelValues(asset).Add(float64(n))
}

// SetQueueDepth records the current depth of an ingest buffer ("queue" or "data").
func (c *Metrics) SetQueueDepth(buffer string, depth int) {
	c.QueueDepth.WithLabelValues(buffer).Set(float64(depth))
}

// RecordDrainDuration records how long a drain cycle took.
func (c *Metrics) RecordDrainDuration(d time.Duration) {
	c.DrainDuration.WithLabelValues().Observe(d.Seconds())
}

// RecordFilterDuration records how long a named filter took to run.
func (c *Metrics) RecordFilterDuration(filter string, d time.Duration) {
	c.FilterDuration.WithLabelValues(filter).Observe(d.Seconds())
}

// RecordFilterError increments a named filter's error counter.
func (c *Metrics) RecordFilterError(filter string) {
	c.FilterErrors.WithLabelValues(filter).Inc()
}

// RecordStorageInsertDuration records how long an append to a table took.
func (c *Metrics) RecordStorageInsertDuration(table string, d time.Duration) {
	c.StorageInsertDuration.WithLabelValues(table).Observe(d.Seconds())
}

// RecordStorageError increments an operation's storage error counter.
func (c *Metrics) RecordStorageError(operation string) {
	c.StorageErrors.WithLabelValues(operation).Inc()
}

// SetStorageConnected updates the storage connection gauge.
func (c *Metrics) SetStorageConnected(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.StorageConnected.Set(value)
}

// RecordNorthSent increments the sent-reading counter for an asset.
func (c *Metrics) RecordNorthSent(asset string, n int) {
	c.NorthSentTotal.WithLabelValues(asset).Add(float64(n))
}

// RecordNorthSendDuration records how long a send of a given OMF message type took.
func (c *Metrics) RecordNorthSendDuration(messageType string, d time.Duration) {
	c.NorthSendDuration.WithLabelValues(messageType).Observe(d.Seconds())
}

// RecordNorthFailure increments the send-failure counter for a message type.
func (c *Metrics) RecordNorthFailure(messageType string) {
	c.NorthFailures.WithLabelValues(messageType).Inc()
}

// RecordPerfMon mirrors a performance counter's min/avg/max snapshot.
func (c *Metrics) RecordPerfMon(counter string, min, avg, max float64) {
	c.PerfMonValue.WithLabelValues(counter, "min").Set(min)
	c.PerfMonValue.WithLabelValues(counter, "avg").Set(avg)
	c.PerfMonValue.WithLabelValues(counter, "max").Set(max)
}

// RecordHealthStatus updates a component's health gauge.
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}
