// Package errors provides standardized error handling patterns for the edge
// ingest, storage, and forwarding pipeline.
//
// # Overview
//
// The package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing). This lets components make retry
// and degradation decisions without hardcoded error string matching.
//
// On top of classification, the package defines domain-specific error
// types used across the pipeline: ParseError (malformed readings or JSON),
// SchemaError (category or query validation failures), TypeError (datapoint
// type mismatches), StorageError (failed storage operations),
// TransportError/BadRequest (north send failures), ConfigError (bad
// configuration categories), and InvalidDate (timestamp normalization
// failures).
//
// # Error Classification
//
//   - Transient: network timeouts, connection issues, temporary unavailability (retry recommended)
//   - Invalid: malformed input, validation failures, bad configuration (do not retry)
//   - Fatal: resource exhaustion, data corruption, unrecoverable states (stop processing)
//
// Classification integrates with errors.Is(), errors.As(), and wrapping
// chains from the standard library.
//
// # Quick Start
//
//	if err := component.Process(data); err != nil {
//	    return errors.Wrap(err, "DataProcessor", "Process", "data validation")
//	}
//
//	if err := operation(); err != nil {
//	    if errors.IsTransient(err) {
//	        config := errors.DefaultRetryConfig()
//	        if config.ShouldRetry(err, attempt) {
//	            time.Sleep(config.BackoffDelay(attempt))
//	        }
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the format "component.method: action failed: %w".
// Three wrapper functions add classification while wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// The generic Wrap() preserves whatever classification the wrapped error
// already carries.
//
// # Domain Error Types
//
// Use the constructors rather than fmt.Errorf when the failure fits one of
// the domain shapes, so callers can errors.As() into it:
//
//	pos, ok := lazyjson.New(data).GetAttribute("reading")
//	if !ok {
//	    return errors.NewParseError(assetName, pos, fmt.Errorf("no reading attribute"))
//	}
//
//	if !result.Valid() {
//	    return errors.NewSchemaError("category filterPipeline", reasons)
//	}
//
//	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
//	    return errors.NewBadRequestError(endpoint, resp.StatusCode, body)
//	}
//
// # ErrorSink
//
// Long-running components (the ingest queue's drain loop, a north
// sender) do not have a caller to return errors to. Rather than a
// process-global error channel, each such component takes an ErrorSink at
// construction time and reports through it; the storage engine likewise
// reports its failed operations to the sink it is opened with:
//
//	sink := errors.ErrorSinkFunc(func(err error) { log.Printf("storage: %v", err) })
//	engine, err := storage.Open(ctx, storage.DefaultConfig(connStr), logger, sink)
//
// Tests and callers that don't care can pass errors.DiscardSink.
//
// # Retry Configuration
//
//	config := errors.DefaultRetryConfig()
//	for attempt := 0; attempt < config.MaxRetries; attempt++ {
//	    if err := operation(); err != nil {
//	        if !config.ShouldRetry(err, attempt) {
//	            return err
//	        }
//	        time.Sleep(config.BackoffDelay(attempt))
//	        continue
//	    }
//	    return nil
//	}
//
// RetryConfig.ToRetryConfig() converts to pkg/retry's Config for use with
// retry.Do / retry.DoWithResult.
//
// # Integration with errors.As/Is
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("component: %s, class: %s", ce.Component, ce.Class)
//	}
//
//	var se *errors.StorageError
//	if errors.As(err, &se) {
//	    log.Printf("storage failure on table %s during %s", se.Table, se.Operation)
//	}
//
// # Design Philosophy
//
//   - Classification over string matching: errors are classified by type, not content
//   - Wrapping over replacement: preserve original errors, add context via wrapping
//   - Standards over invention: use Go's error handling idioms (Is/As/Unwrap)
//   - Explicit sinks over globals: background components take an ErrorSink, not a shared channel
package errors
