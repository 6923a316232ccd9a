package config

import "encoding/json"

// Category identifies one of the fixed set of configuration documents the
// pipeline accepts at runtime. Unlike the teacher's generic, dynamically
// registered service/component config, this domain has exactly three
// configurable surfaces.
type Category string

const (
	// CategoryFilterPipeline configures the ordered set of filter stages
	// applied to readings before storage (spec §4.E).
	CategoryFilterPipeline Category = "filterPipeline"
	// CategoryStorage configures the storage engine's connection and
	// purge behavior (spec §4.C).
	CategoryStorage Category = "storage"
	// CategoryPerfmon configures whether performance counters are
	// collected and how often they're flushed (spec §4.D). The schema
	// also accepts a counters list, which the daemons do not read.
	CategoryPerfmon Category = "perfmon"
)

// categories lists every known category, used to validate incoming keys
// and to build the KV watch pattern.
var categories = []Category{CategoryFilterPipeline, CategoryStorage, CategoryPerfmon}

// IsValid reports whether c names a known configuration category.
func (c Category) IsValid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// kvKey returns the NATS KV key backing this category, e.g.
// "categories.filterPipeline".
func (c Category) kvKey() string {
	return "categories." + string(c)
}

// categoryFromKey extracts the Category from a KV key, returning ok=false
// for keys outside the "categories.<name>" namespace.
func categoryFromKey(key string) (Category, bool) {
	const prefix = "categories."
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", false
	}
	c := Category(key[len(prefix):])
	return c, c.IsValid()
}

// Update is delivered to subscribers when a category's content changes.
type Update struct {
	Category Category
	Content  json.RawMessage
	Revision uint64
}
