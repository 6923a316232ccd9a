package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/charithmadhuranga/fledge/config"
	"github.com/charithmadhuranga/fledge/filter"
	"github.com/charithmadhuranga/fledge/ingest"
	"github.com/charithmadhuranga/fledge/perfmon"
	"github.com/charithmadhuranga/fledge/storage"
)

// storageSettings is the parsed shape of the "storage" category,
// applied on top of storage.DefaultConfig at boot. The connection
// string itself always comes from DB_CONNECTION (spec §4.C), never from
// this category, so an operator can't accidentally push a credential
// change through the config bucket.
type storageSettings struct {
	MaxConnections       int32  `json:"maxConnections"`
	PurgeAgeHours        int    `json:"purgeAgeHours"`
	PurgeRetainUnsent    bool   `json:"purgeRetainUnsent"`
	ConnectFailLogWindow string `json:"connectFailLogWindow"`
}

// applyStorageSettings overlays a parsed storage category document onto
// base, ignoring fields that don't parse rather than failing boot over
// a malformed optional tuning knob.
func applyStorageSettings(base storage.Config, content []byte) storage.Config {
	var settings storageSettings
	if err := json.Unmarshal(content, &settings); err != nil {
		return base
	}
	if settings.MaxConnections > 0 {
		base.MaxConnections = settings.MaxConnections
	}
	if settings.PurgeAgeHours > 0 {
		base.PurgeAgeHours = settings.PurgeAgeHours
	}
	base.PurgeRetainUnsent = settings.PurgeRetainUnsent
	if d, err := time.ParseDuration(settings.ConnectFailLogWindow); err == nil && d > 0 {
		base.ConnectFailLogWindow = d
	}
	return base
}

// perfmonSettings is the parsed shape of the "perfmon" category.
type perfmonSettings struct {
	Collecting    bool   `json:"collecting"`
	FlushInterval string `json:"flushInterval"`
}

// firstUpdate blocks for one category update or ctx cancellation,
// returning ok=false if the manager closed the channel or ctx expired
// before content arrived.
func firstUpdate(ctx context.Context, ch <-chan config.Update) (config.Update, bool) {
	select {
	case update, ok := <-ch:
		return update, ok
	case <-ctx.Done():
		return config.Update{}, false
	}
}

// watchFilterPipeline rebuilds and swaps the ingest queue's pipeline on
// every filterPipeline category update, for the life of ctx.
func watchFilterPipeline(ctx context.Context, ch <-chan config.Update, queue *ingest.Queue, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			cfg, err := filter.ParsePipelineConfig(update.Content)
			if err != nil {
				logger.Error("invalid filterPipeline content, keeping previous pipeline", "error", err)
				continue
			}
			pipeline, err := filter.BuildPipeline(cfg)
			if err != nil {
				logger.Error("failed to build filter pipeline, keeping previous pipeline", "error", err)
				continue
			}
			queue.SetPipeline(ctx, pipeline)
			logger.Info("filter pipeline reconfigured", "stages", len(cfg.Stages))
		}
	}
}

// watchPerfmon toggles the monitor's collecting flag on every perfmon
// category update. flushInterval changes require a restart: the
// housekeeper goroutine's ticker period is fixed at Monitor.Start.
func watchPerfmon(ctx context.Context, ch <-chan config.Update, monitor *perfmon.Monitor, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			var settings perfmonSettings
			if err := json.Unmarshal(update.Content, &settings); err != nil {
				logger.Error("invalid perfmon content", "error", err)
				continue
			}
			monitor.SetCollecting(settings.Collecting)
		}
	}
}

func parsePerfmonFlushInterval(content []byte, fallback time.Duration) time.Duration {
	var settings perfmonSettings
	if err := json.Unmarshal(content, &settings); err != nil {
		return fallback
	}
	d, err := time.ParseDuration(settings.FlushInterval)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
