package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/charithmadhuranga/fledge/config"
	"github.com/charithmadhuranga/fledge/perfmon"
	"github.com/charithmadhuranga/fledge/storage"
)

// storageSettings is the parsed shape of the "storage" category. The
// connection string itself always comes from DB_CONNECTION (spec
// §4.C), never from this category.
type storageSettings struct {
	MaxConnections       int32  `json:"maxConnections"`
	PurgeAgeHours        int    `json:"purgeAgeHours"`
	PurgeRetainUnsent    bool   `json:"purgeRetainUnsent"`
	ConnectFailLogWindow string `json:"connectFailLogWindow"`
}

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

func firstUpdate(ctx context.Context, ch <-chan config.Update) (config.Update, bool) {
	select {
	case update, ok := <-ch:
		return update, ok
	case <-ctx.Done():
		return config.Update{}, false
	}
}

// watchPerfmon toggles the monitor's collecting flag on every perfmon
// category update, mirroring southd's own watcher.
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
