package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategory_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		want     bool
	}{
		{"filterPipeline", CategoryFilterPipeline, true},
		{"storage", CategoryStorage, true},
		{"perfmon", CategoryPerfmon, true},
		{"unknown", Category("bogus"), false},
		{"empty", Category(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.category.IsValid())
		})
	}
}

func TestCategory_kvKey(t *testing.T) {
	assert.Equal(t, "categories.filterPipeline", CategoryFilterPipeline.kvKey())
	assert.Equal(t, "categories.storage", CategoryStorage.kvKey())
}

func TestCategoryFromKey(t *testing.T) {
	tests := []struct {
		key      string
		wantCat  Category
		wantOK   bool
	}{
		{"categories.filterPipeline", CategoryFilterPipeline, true},
		{"categories.storage", CategoryStorage, true},
		{"categories.bogus", "", false},
		{"platform", "", false},
		{"categories.", "", false},
	}

	for _, tt := range tests {
		got, ok := categoryFromKey(tt.key)
		assert.Equal(t, tt.wantOK, ok, "key=%s", tt.key)
		if ok {
			assert.Equal(t, tt.wantCat, got)
		}
	}
}
