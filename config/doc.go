// Package config delivers the three runtime-configurable documents the
// edge pipeline accepts — filterPipeline, storage, and perfmon — from a
// NATS JetStream KV bucket to whichever component needs to react to them.
//
// # Categories
//
// Each category is an independent JSON document validated against a fixed
// JSON Schema (see schema.go) before it's accepted or delivered to
// subscribers:
//
//	filterPipeline  - ordered filter stages applied to readings before storage
//	storage         - storage engine connection and purge behavior
//	perfmon         - whether performance counters are collected and how often
//
// # Usage
//
//	mgr, err := config.NewCategoryManager(ctx, natsClient, logger)
//	if err := mgr.Start(ctx); err != nil { ... }
//	defer mgr.Stop(5 * time.Second)
//
//	updates, _ := mgr.OnChange(ctx, config.CategoryFilterPipeline)
//	for update := range updates {
//	    rebuildPipeline(update.Content)
//	}
//
// On first boot, any category missing from KV is seeded with a
// conservative default (see defaults.go) so consumers never have to
// special-case an absent document.
package config
