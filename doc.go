// Package fledge is an edge data-acquisition and forwarding platform: it
// ingests time-series readings posted by a south-side plugin, filters and
// buffers them in a relational storage engine, and forwards them north
// to an OMF/PI Linked Data connector on a stream cursor.
//
// # Architecture
//
//	┌──────────────┐     ┌──────────────┐     ┌──────────────┐
//	│  HTTP ingest │ --> │  Filter      │ --> │  Storage     │
//	│  (cmd/southd)│     │  pipeline    │     │  engine      │
//	└──────────────┘     └──────────────┘     └──────┬───────┘
//	                                                  │
//	                                     fetch by id cursor
//	                                                  ↓
//	                                          ┌──────────────┐
//	                                          │  OMF emitter │
//	                                          │  (cmd/northd)│
//	                                          └──────┬───────┘
//	                                                 ↓
//	                                          PI Connector / OMF
//	                                          HTTP endpoint
//
// Two independent processes share the storage engine: cmd/southd drains
// its in-process ingest queue, fed by HTTP POST /ingest, through the
// filter pipeline into storage, and
// cmd/northd polls storage for unforwarded readings and POSTs them north
// as OMF Linked Data messages. Both share the config category manager
// (NATS JetStream KV), Prometheus metrics, and the health monitor.
//
// # Packages
//
//   - config: category-based configuration over NATS JetStream KV
//   - errors: typed error classification (transient/invalid/fatal) and
//     retry policy conversion
//   - filter: named reading-filter stages (built-ins: scale, exclude)
//   - health: liveness/readiness aggregation
//   - ingest: swap-buffer queue (no capacity limit) draining into storage
//   - lazyjson: allocation-light, offset-based JSON scanner
//   - metric: Prometheus metrics registry and HTTP handler
//   - natsclient: NATS connection management and JetStream KV helpers
//   - north: fetch/emit/send scheduler driving the OMF forwarder
//   - north/omf: OMF/PI Linked Data emitter
//   - perfmon: per-name min/avg/max performance sample aggregation
//   - pkg/retry: exponential backoff retry
//   - pkg/timestamp: timestamp parsing/formatting helpers
//   - storage: JSON-dialect query compiler and PostgreSQL-backed
//     reading store
//   - types: shared domain types (Reading, Value, Datapoint)
//
// # Binaries
//
//	cmd/southd — ingest + filter + storage
//	cmd/northd — storage + OMF forwarding
package fledge
