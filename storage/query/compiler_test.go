package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, doc string) *Query {
	t.Helper()
	q, err := Parse([]byte(doc))
	require.NoError(t, err)
	return q
}

func TestCompile_DefaultReadingsProjection(t *testing.T) {
	q := mustParse(t, `{}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, "to_char(user_ts,'YYYY-MM-DD HH24:MI:SS.US') as user_ts")
	assert.Contains(t, sql, "SELECT id, asset_code, read_key, reading")
}

func TestCompile_WhereEquals(t *testing.T) {
	q := mustParse(t, `{"where":{"column":"asset_code","condition":"=","value":"sensor1"}}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, `"asset_code" = 'sensor1'`)
}

func TestCompile_WhereAndOr(t *testing.T) {
	q := mustParse(t, `{"where":{"column":"a","condition":"=","value":1,"and":{"column":"b","condition":"=","value":2}}}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, `("a" = 1 AND "b" = 2)`)
}

func TestCompile_WhereIn(t *testing.T) {
	q := mustParse(t, `{"where":{"column":"a","condition":"in","value":[1,2,3]}}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, `"a" IN (1, 2, 3)`)
}

func TestCompile_WhereInEmptyIsError(t *testing.T) {
	q := mustParse(t, `{"where":{"column":"a","condition":"in","value":[]}}`)
	_, err := Compile("readings", q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `The "value" of a "in" condition must be an array and must not be empty.`)
}

func TestCompile_AggregateCount(t *testing.T) {
	q := mustParse(t, `{"aggregate":{"operation":"count","column":"*"}}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, `COUNT(*) AS "count_*"`)
}

func TestCompile_AggregateWithAlias(t *testing.T) {
	q := mustParse(t, `{"aggregate":{"operation":"avg","column":"temperature","alias":"avgtemp"}}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, `AVG("temperature") AS "avgtemp"`)
}

func TestCompile_ReturnWithFormat(t *testing.T) {
	q := mustParse(t, `{"return":[{"column":"ts","format":"YYYY-MM-DD"}]}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, "to_char(to_char(ts,'YYYY-MM-DD HH24:MI:SS.US'), 'YYYY-MM-DD')")
}

func TestCompile_ReturnBareColumnAliasesToOriginalName(t *testing.T) {
	q := mustParse(t, `{"return":["user_ts"]}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, `to_char(user_ts,'YYYY-MM-DD HH24:MI:SS.US') AS "user_ts"`)
}

func TestCompile_JSONReturnAppendsExistenceConstraint(t *testing.T) {
	q := mustParse(t, `{"return":[{"json":{"column":"reading","properties":["temperature"]}}]}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE "reading" ? 'temperature'`)
}

func TestCompile_JSONReturnExistenceConstraintCombinesWithWhere(t *testing.T) {
	q := mustParse(t, `{"where":{"column":"asset_code","condition":"=","value":"sensor1"},"return":[{"json":{"column":"reading","properties":["temperature"]}}]}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE "asset_code" = 'sensor1' AND "reading" ? 'temperature'`)
}

func TestCompile_WhereOlderUsesRawColumnNotToChar(t *testing.T) {
	q := mustParse(t, `{"where":{"column":"ts","condition":"older","value":3600}}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE "ts" < now() - interval '3600 seconds'`)
	assert.NotContains(t, sql, `to_char(ts,`)
}

func TestCompile_WhereNewerUsesRawColumnNotToChar(t *testing.T) {
	q := mustParse(t, `{"where":{"column":"user_ts","condition":"newer","value":60}}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE "user_ts" > now() - interval '60 seconds'`)
	assert.NotContains(t, sql, `to_char(user_ts,`)
}

func TestCompile_GroupOnReadingsUsesRawColumn(t *testing.T) {
	q := mustParse(t, `{"group":{"column":"ts"}}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, `GROUP BY "ts"`)
	assert.NotContains(t, sql, `to_char(ts,`)
}

func TestCompile_TimebucketGroupByOrderByAndProjection(t *testing.T) {
	q := mustParse(t, `{"timebucket":{"timestamp":"ts","size":60,"alias":"bucket"},"aggregate":{"operation":"count","column":"*"}}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	expr := "to_timestamp(floor(extract(epoch from \"ts\") / 60) * 60)"
	assert.Contains(t, sql, expr+` AS "bucket"`)
	assert.Contains(t, sql, "GROUP BY "+expr)
	assert.Contains(t, sql, "ORDER BY "+expr+" DESC")
	assert.NotContains(t, sql, `to_char(ts,`)
}

func TestCompile_TimebucketWithFormatAppliesToChar(t *testing.T) {
	q := mustParse(t, `{"timebucket":{"timestamp":"ts","size":60,"alias":"bucket","format":"YYYY-MM-DD"},"aggregate":{"operation":"count","column":"*"}}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, "to_char(to_timestamp(floor(extract(epoch from \"ts\") / 60) * 60), 'YYYY-MM-DD') AS \"bucket\"")
	// GROUP BY / ORDER BY use the raw bucketing expression, not the formatted one.
	assert.Contains(t, sql, "GROUP BY to_timestamp(floor(extract(epoch from \"ts\") / 60) * 60)")
	assert.Contains(t, sql, "ORDER BY to_timestamp(floor(extract(epoch from \"ts\") / 60) * 60) DESC")
}

func TestCompile_SortAndTimebucketMutuallyExclusive(t *testing.T) {
	_, err := Parse([]byte(`{"sort":{"column":"ts"},"timebucket":{"timestamp":"ts"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sort and timebucket modifiers can not be used in the same payload")
}

func TestCompile_LimitAndSkip(t *testing.T) {
	q := mustParse(t, `{"limit":10,"skip":5}`)
	sql, err := Compile("readings", q)
	require.NoError(t, err)
	assert.Contains(t, sql, "LIMIT 10")
	assert.Contains(t, sql, "OFFSET 5")
}

func TestCompile_AggregateAndReturnMutuallyExclusive(t *testing.T) {
	_, err := Parse([]byte(`{"aggregate":{"operation":"count","column":"*"},"return":["a"]}`))
	require.Error(t, err)
}

func TestCompileInsert(t *testing.T) {
	sql, err := CompileInsert("assets", []byte(`{"name":"pump1","created":"now()","count":3}`))
	require.NoError(t, err)
	assert.Contains(t, sql, `"count", "created", "name"`)
	assert.Contains(t, sql, "now()")
	assert.Contains(t, sql, "'pump1'")
}

func TestCompileUpdate_ValuesAndExpressions(t *testing.T) {
	stmts, err := CompileUpdate("assets", []byte(`{"values":{"name":"pump2"},"expressions":{"count":"count+1"},"where":{"column":"id","condition":"=","value":1}}`))
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], `"name" = 'pump2'`)
	assert.Contains(t, stmts[0], `"count" = count+1`)
	assert.Contains(t, stmts[0], `WHERE "id" = 1`)
}

func TestCompileUpdate_RequiresAtLeastOneField(t *testing.T) {
	_, err := CompileUpdate("assets", []byte(`{}`))
	require.Error(t, err)
}

func TestCompileUpdate_UpdatesArrayIsUnwrapped(t *testing.T) {
	stmts, err := CompileUpdate("assets", []byte(`{"updates":[
		{"values":{"name":"pump2"},"where":{"column":"id","condition":"=","value":1}},
		{"values":{"name":"pump3"},"where":{"column":"id","condition":"=","value":2}}
	]}`))
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], `"name" = 'pump2'`)
	assert.Contains(t, stmts[0], `WHERE "id" = 1`)
	assert.Contains(t, stmts[1], `"name" = 'pump3'`)
	assert.Contains(t, stmts[1], `WHERE "id" = 2`)
}

func TestCompileDelete_RequiresWhere(t *testing.T) {
	_, err := CompileDelete("assets", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON does not contain where clause")
}

func TestCompileDelete_WithWhere(t *testing.T) {
	sql, err := CompileDelete("assets", []byte(`{"where":{"column":"id","condition":"=","value":1}}`))
	require.NoError(t, err)
	assert.Contains(t, sql, `DELETE FROM assets WHERE "id" = 1`)
}
