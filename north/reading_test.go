package north

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charithmadhuranga/fledge/types"
)

func TestRowToReading_DecodesDatapointsAndTimestamp(t *testing.T) {
	row := map[string]any{
		"id":         int64(42),
		"asset_code": "sensor1",
		"read_key":   "k1",
		"user_ts":    "2024-01-02 03:04:05.100000+00:00",
		"reading":    map[string]any{"temperature": 21.5, "status": "ok"},
	}

	reading, hints, err := RowToReading(row)
	require.NoError(t, err)
	assert.Empty(t, hints)
	assert.Equal(t, "sensor1", reading.AssetCode)
	assert.Equal(t, "k1", reading.ReadKey)
	assert.NotZero(t, reading.UserTs)

	temp, ok := reading.Datapoint("temperature")
	require.True(t, ok)
	assert.Equal(t, types.ValueFloat, temp.Value.Kind)

	status, ok := reading.Datapoint("status")
	require.True(t, ok)
	assert.Equal(t, types.ValueString, status.Value.Kind)
}

func TestRowToReading_MissingAssetCode(t *testing.T) {
	_, _, err := RowToReading(map[string]any{"user_ts": "2024-01-02 03:04:05+00:00", "reading": map[string]any{}})
	assert.Error(t, err)
}

func TestRowToReading_UnparsableTimestamp(t *testing.T) {
	_, _, err := RowToReading(map[string]any{
		"asset_code": "sensor1",
		"user_ts":    "not-a-timestamp",
		"reading":    map[string]any{},
	})
	assert.Error(t, err)
}

func TestScanHints_ExtractsTagHints(t *testing.T) {
	raw := []byte(`{"temperature":21.5,"OMFHint":{"OMFTagNameHint":"override","OMFTagHint":"tag"}}`)
	hints := scanHints(raw)
	assert.Equal(t, "override", hints[types.OMFTagNameHint])
	assert.Equal(t, "tag", hints[types.OMFTagHint])
}

func TestScanHints_NoHintObjectReturnsEmpty(t *testing.T) {
	raw := []byte(`{"temperature":21.5}`)
	hints := scanHints(raw)
	assert.Empty(t, hints)
}

func TestRowToReading_WholeNumberDecodesAsInteger(t *testing.T) {
	row := map[string]any{
		"asset_code": "sensor1",
		"user_ts":    "2024-01-02 03:04:05+00:00",
		"reading":    map[string]any{"v": int64(1)},
	}
	reading, _, err := RowToReading(row)
	require.NoError(t, err)
	dp, ok := reading.Datapoint("v")
	require.True(t, ok)
	assert.Equal(t, types.ValueInteger, dp.Value.Kind)
}
