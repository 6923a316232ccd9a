// Package metric provides Prometheus-based metrics collection and an HTTP
// exposition server for the ingest, storage, and forwarding pipeline.
//
// The package offers a centralized metrics registry managing both core
// pipeline metrics (readings ingested/discarded, storage latency, north send
// results, perfmon mirrors) and ad-hoc service-specific metrics registered
// through the MetricsRegistrar interface.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//	defer server.Stop()
//
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordIngested("wind-sensor-01", 3)
//	coreMetrics.RecordStorageInsertDuration("readings", 12*time.Millisecond)
//
// # Core Metrics
//
// All core metrics use the "fledge" namespace:
//
//   - fledge_ingest_readings_total{asset="..."}
//   - fledge_ingest_readings_discarded_total{asset="..."}
//   - fledge_ingest_queue_depth{buffer="queue|data"}
//   - fledge_filter_duration_seconds{filter="..."}
//   - fledge_storage_insert_duration_seconds{table="..."}
//   - fledge_storage_errors_total{operation="..."}
//   - fledge_north_readings_sent_total{asset="..."}
//   - fledge_north_send_failures_total{message_type="..."}
//   - fledge_perfmon_value{counter="...", stat="min|avg|max"}
//   - fledge_health_status{component="..."}
//
// # Service-Specific Metrics
//
// Components register custom collectors through the registry, which enforces
// one registration per (service, metric) pair and forwards duplicate
// registration errors from Prometheus as classified errors:
//
//	requestCounter := prometheus.NewCounter(prometheus.CounterOpts{Name: "requests_total"})
//	err := registry.RegisterCounter("north-omf", "requests_total", requestCounter)
//
// # HTTP Server
//
// The metrics server exposes one endpoint, GET /metrics, in Prometheus
// exposition format. It has no TLS support; a reverse proxy in front of the
// process is expected to add TLS if the deployment needs it.
package metric
