// Package natsclient wraps the NATS Go client with circuit breaker
// protection, automatic reconnection, and JetStream/KV support for
// fledge's south and north edge daemons.
//
// southd and northd both use a *Client purely as the transport for
// dynamic configuration: config.CategoryManager watches a JetStream KV
// bucket (see KVStore) for filterPipeline/storage/perfmon category
// updates, so a daemon can pick up a new setting without a restart.
// Neither daemon publishes or subscribes over ordinary NATS subjects —
// readings arrive over HTTP (ingest) and leave over OMF/PI (north) —
// so Client also exposes JetStream stream/consumer helpers and a
// generic Subscribe/Publish pair as connection-management building
// blocks a future daemon (or a south/north plugin) can reach for
// without repeating the circuit breaker and reconnect wiring.
//
// # Core Features
//
// Circuit Breaker Pattern: Prevents cascading failures by failing fast
// after a threshold of consecutive failures (default: 5). The circuit
// opens to prevent further attempts, then gradually tests the
// connection with exponential backoff.
//
// Connection Lifecycle Management: Handles connection states
// automatically through the lifecycle: Disconnected → Connecting →
// Connected → Reconnecting → Connected.
//
// JetStream Support: Stream, consumer, and Key-Value operations with
// circuit breaker integration and, when WithMetrics is set, Prometheus
// gauges/counters registered under the "fledge_jetstream_*" names that
// southd's and northd's /metrics endpoints already serve.
//
// KVStore Abstraction: High-level abstraction over NATS KV providing
// automatic CAS retry logic and JSON helpers — config.CategoryManager
// uses Put directly since categories are last-writer-wins; UpdateJSON
// and UpdateWithRetry are available for a future category that needs
// optimistic-concurrency writes.
//
// # Basic Usage
//
// southd and northd both connect the same way at startup:
//
//	client, err := natsclient.NewClient(cfg.NATSUrl,
//	    natsclient.WithName("southd"),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	if err := client.WaitForConnection(connCtx); err != nil {
//	    return err
//	}
//
// # Configuration KV
//
// config.NewCategoryManager creates (or reuses) the fledge_config
// bucket and wraps it in a KVStore:
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket:  "fledge_config",
//	    History: 5,
//	})
//	kvStore := client.NewKVStore(bucket)
//	_, err = kvStore.Put(ctx, "categories.storage", content)
//
// # Circuit Breaker
//
//	err := client.Connect(ctx)
//	if errors.Is(err, natsclient.ErrCircuitOpen) {
//	    // Failures exceeded the threshold; back off before retrying.
//	}
//
// # Connection Status and Health
//
//	if client.IsHealthy() {
//	    // ready for use
//	}
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	err := client.WaitForConnection(ctx)
//
// # Error Handling
//
// The package defines sentinel errors for connection state:
//
//	ErrCircuitOpen, ErrNotConnected, ErrConnectionTimeout
//
// and for KV operations:
//
//	ErrKVKeyNotFound, ErrKVKeyExists, ErrKVRevisionMismatch, ErrKVMaxRetriesExceeded
//
// # Thread Safety
//
// Client is safe for concurrent use from multiple goroutines. Close
// runs its cleanup exactly once even if called from more than one
// shutdown path.
//
// # Testing
//
// test_client.go and test_options.go start a real NATS server via
// testcontainers for the package's own integration tests
// (kv_integration_test.go, kv_error_integration_test.go). They are
// test-only scaffolding, not part of the daemon-facing API.
package natsclient
