package natsclient

import "time"

// Presets for NewTestClient covering the scenarios natsclient's own
// integration tests exercise, from a bare connection up to the
// JetStream+KV setup config.CategoryManager depends on.

// WithFastStartup configures NATS for fastest possible startup (good for unit tests)
func WithFastStartup() TestOption {
	return func(cfg *testConfig) {
		cfg.timeout = 2 * time.Second
		cfg.startTimeout = 10 * time.Second
	}
}

// WithIntegrationDefaults configures NATS with settings good for integration tests
func WithIntegrationDefaults() TestOption {
	return func(cfg *testConfig) {
		cfg.timeout = 5 * time.Second
		cfg.startTimeout = 30 * time.Second
		cfg.jetstream = true
	}
}

// WithE2EDefaults configures NATS with settings good for end-to-end tests
func WithE2EDefaults() TestOption {
	return func(cfg *testConfig) {
		cfg.timeout = 10 * time.Second
		cfg.startTimeout = 60 * time.Second
		cfg.jetstream = true
		cfg.kv = true
	}
}

// WithMinimalFeatures configures NATS with only basic pub/sub (fastest startup)
func WithMinimalFeatures() TestOption {
	return func(cfg *testConfig) {
		cfg.jetstream = false
		cfg.kv = false
		cfg.timeout = 1 * time.Second
		cfg.startTimeout = 5 * time.Second
	}
}
