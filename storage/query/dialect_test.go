package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ReturnBareStrings(t *testing.T) {
	q, err := Parse([]byte(`{"return":["asset_code","reading"]}`))
	require.NoError(t, err)
	require.Len(t, q.Return, 2)
	assert.Equal(t, "asset_code", q.Return[0].Column)
}

func TestParse_ReturnJSONPath(t *testing.T) {
	q, err := Parse([]byte(`{"return":[{"json":{"column":"reading","properties":["temperature"]},"alias":"temp"}]}`))
	require.NoError(t, err)
	require.Len(t, q.Return, 1)
	require.NotNil(t, q.Return[0].JSON)
	assert.Equal(t, "reading", q.Return[0].JSON.Column)
	assert.Equal(t, []string{"temperature"}, q.Return[0].JSON.Properties)
	assert.Equal(t, "temp", q.Return[0].Alias)
}

func TestParse_GroupBareString(t *testing.T) {
	q, err := Parse([]byte(`{"group":"asset_code"}`))
	require.NoError(t, err)
	require.NotNil(t, q.Group)
	assert.Equal(t, "asset_code", q.Group.Column)
}

func TestParse_SortSingleAndArray(t *testing.T) {
	q, err := Parse([]byte(`{"sort":{"column":"ts","direction":"desc"}}`))
	require.NoError(t, err)
	require.Len(t, q.Sort, 1)
	assert.Equal(t, "DESC", q.Sort[0].Direction)

	q, err = Parse([]byte(`{"sort":[{"column":"ts"},{"column":"asset_code","direction":"desc"}]}`))
	require.NoError(t, err)
	require.Len(t, q.Sort, 2)
	assert.Equal(t, "ASC", q.Sort[0].Direction)
}

func TestParse_TimebucketDefaults(t *testing.T) {
	q, err := Parse([]byte(`{"timebucket":{"timestamp":"ts"}}`))
	require.NoError(t, err)
	require.NotNil(t, q.Timebucket)
	assert.Equal(t, 1, q.Timebucket.Size)
	assert.Equal(t, "timestamp", q.Timebucket.Alias)
}

func TestParse_AggregateArray(t *testing.T) {
	q, err := Parse([]byte(`{"aggregate":[{"operation":"min","column":"a"},{"operation":"max","column":"a"}]}`))
	require.NoError(t, err)
	require.Len(t, q.Aggregate, 2)
}

func TestParse_WhereRecursiveOr(t *testing.T) {
	q, err := Parse([]byte(`{"where":{"column":"a","condition":"=","value":1,"or":{"column":"b","condition":"=","value":2}}}`))
	require.NoError(t, err)
	require.NotNil(t, q.Where.Or)
	assert.Equal(t, "b", q.Where.Or.Column)
}
