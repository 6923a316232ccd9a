package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charithmadhuranga/fledge/errors"
)

func TestValidateCategory_DefaultsAreValid(t *testing.T) {
	for _, category := range categories {
		t.Run(string(category), func(t *testing.T) {
			err := ValidateCategory(category, DefaultContent(category))
			assert.NoError(t, err)
		})
	}
}

func TestValidateCategory_FilterPipeline(t *testing.T) {
	valid := []byte(`{"stages":[{"name":"scale","enabled":true,"config":{"factor":2}}]}`)
	require.NoError(t, ValidateCategory(CategoryFilterPipeline, valid))

	missingRequired := []byte(`{"stages":[{"name":"scale"}]}`)
	err := ValidateCategory(CategoryFilterPipeline, missingRequired)
	require.Error(t, err)

	var schemaErr *errors.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.NotEmpty(t, schemaErr.Reasons)
}

func TestValidateCategory_Storage(t *testing.T) {
	valid := []byte(`{"maxConnections":20,"purgeAgeHours":48}`)
	assert.NoError(t, ValidateCategory(CategoryStorage, valid))

	invalid := []byte(`{"maxConnections":0}`)
	assert.Error(t, ValidateCategory(CategoryStorage, invalid))
}

func TestValidateCategory_UnknownCategory(t *testing.T) {
	err := ValidateCategory(Category("bogus"), []byte(`{}`))
	require.Error(t, err)

	var configErr *errors.ConfigError
	require.ErrorAs(t, err, &configErr)
}

func TestValidateCategory_TooLarge(t *testing.T) {
	huge := make([]byte, maxCategorySize+1)
	err := ValidateCategory(CategoryPerfmon, huge)
	require.Error(t, err)

	var configErr *errors.ConfigError
	require.ErrorAs(t, err, &configErr)
}
