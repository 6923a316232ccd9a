package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds the north process's command-line configuration. Every
// flag has an environment variable fallback so the process can be run
// from a container without a wrapper script.
type CLIConfig struct {
	NATSUrl         string
	DBConnection    string
	OMFEndpoint     string
	StreamName      string
	PollInterval    time.Duration
	BlockSize       int
	LogLevel        string
	LogFormat       string
	MetricsPort     int
	HealthPort      int
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.NATSUrl, "nats-url",
		getEnv("FLEDGE_NATS_URL", "nats://localhost:4222"),
		"NATS server URL for config-category delivery (env: FLEDGE_NATS_URL)")

	flag.StringVar(&cfg.DBConnection, "db-connection",
		getEnv("DB_CONNECTION", ""),
		"Postgres connection string (env: DB_CONNECTION)")

	flag.StringVar(&cfg.OMFEndpoint, "omf-endpoint",
		getEnv("FLEDGE_OMF_ENDPOINT", ""),
		"OMF/PI connector relay endpoint URL (env: FLEDGE_OMF_ENDPOINT)")

	flag.StringVar(&cfg.StreamName, "stream-name",
		getEnv("FLEDGE_NORTH_STREAM", "north-omf"),
		"Name of the forwarding progress cursor (env: FLEDGE_NORTH_STREAM)")

	flag.DurationVar(&cfg.PollInterval, "poll-interval",
		getEnvDuration("FLEDGE_NORTH_POLL_INTERVAL", 2*time.Second),
		"Interval between fetchReadings polls once caught up (env: FLEDGE_NORTH_POLL_INTERVAL)")

	flag.IntVar(&cfg.BlockSize, "block-size",
		getEnvInt("FLEDGE_NORTH_BLOCK_SIZE", 1000),
		"Max readings fetched per fetchReadings call (env: FLEDGE_NORTH_BLOCK_SIZE)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("FLEDGE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: FLEDGE_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("FLEDGE_LOG_FORMAT", "json"),
		"Log format: json, text (env: FLEDGE_LOG_FORMAT)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("FLEDGE_NORTH_METRICS_PORT", 9091),
		"Prometheus /metrics port (env: FLEDGE_NORTH_METRICS_PORT)")

	flag.IntVar(&cfg.HealthPort, "health-port",
		getEnvInt("FLEDGE_NORTH_HEALTH_PORT", 8090),
		"Health check port (env: FLEDGE_NORTH_HEALTH_PORT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("FLEDGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: FLEDGE_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")

	flag.Usage = printHelp

	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}
	if cfg.DBConnection == "" {
		return fmt.Errorf("db connection string is required (set -db-connection or DB_CONNECTION)")
	}
	if cfg.OMFEndpoint == "" {
		return fmt.Errorf("omf endpoint is required (set -omf-endpoint or FLEDGE_OMF_ENDPOINT)")
	}
	if cfg.BlockSize <= 0 {
		return fmt.Errorf("invalid block size: %d", cfg.BlockSize)
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}
	if cfg.HealthPort < 0 || cfg.HealthPort > 65535 {
		return fmt.Errorf("invalid health port: %d", cfg.HealthPort)
	}
	return nil
}

func printHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - edge north forwarding service

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, "\nVersion: %s\n", Version)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
