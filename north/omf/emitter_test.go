package omf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charithmadhuranga/fledge/types"
)

func reading(assetCode string) *types.Reading {
	return &types.Reading{
		AssetCode: assetCode,
		UserTs:    1704164645123000,
		Datapoints: []types.Datapoint{
			{Name: "temperature", Value: types.NewFloatValue(21.5)},
		},
	}
}

func TestProcessReading_FirstSightingEmitsAssetAndLink(t *testing.T) {
	e := New(DefaultConfig("http://example.invalid"), nil, nil)
	fragment, err := e.ProcessReading(reading("sensor1"), nil)
	require.NoError(t, err)

	assert.Contains(t, fragment, `"typeid":"FledgeAsset"`)
	assert.Contains(t, fragment, `"typeid":"__Link"`)
	assert.Contains(t, fragment, `"containerid": "sensor1_temperature"`)
	assert.Contains(t, fragment, `"Double": 21.5`)
}

func TestProcessReading_SecondSightingSkipsAssetAndLink(t *testing.T) {
	e := New(DefaultConfig("http://example.invalid"), nil, nil)
	_, err := e.ProcessReading(reading("sensor1"), nil)
	require.NoError(t, err)

	fragment, err := e.ProcessReading(reading("sensor1"), nil)
	require.NoError(t, err)

	assert.NotContains(t, fragment, "FledgeAsset")
	assert.NotContains(t, fragment, "__Link")
	assert.Contains(t, fragment, `"containerid": "sensor1_temperature"`)
}

func TestProcessReading_TagNameHintOverridesAssetName(t *testing.T) {
	e := New(DefaultConfig("http://example.invalid"), nil, nil)
	fragment, err := e.ProcessReading(reading("sensor1"), map[string]string{types.OMFTagNameHint: "override"})
	require.NoError(t, err)
	assert.Contains(t, fragment, `"AssetId":"override"`)
}

func TestProcessReading_SkipsOMFHintDatapoint(t *testing.T) {
	e := New(DefaultConfig("http://example.invalid"), nil, nil)
	r := reading("sensor1")
	r.Datapoints = append(r.Datapoints, types.Datapoint{Name: types.OMFHintDatapoint, Value: types.NewStringValue("x")})

	fragment, err := e.ProcessReading(r, nil)
	require.NoError(t, err)
	assert.NotContains(t, fragment, "sensor1_OMFHint")
}

func TestFlushContainers_PostsAndClears(t *testing.T) {
	var receivedType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedType = r.Header.Get("messagetype")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig(server.URL)
	e := New(cfg, nil, nil)
	_, err := e.ProcessReading(reading("sensor1"), nil)
	require.NoError(t, err)

	ok, err := e.FlushContainers(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "container", receivedType)
	assert.Equal(t, 0, e.containers.Len())
}

func TestFlushContainers_NoOpWhenEmpty(t *testing.T) {
	e := New(DefaultConfig("http://example.invalid"), nil, nil)
	ok, err := e.FlushContainers(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPost_BadRequestIsNonFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	e := New(DefaultConfig(server.URL), nil, nil)
	ok, err := e.SendBatch(context.Background(), []string{`{"a":1}`})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateSchema_ResetsMemoization(t *testing.T) {
	e := New(DefaultConfig("http://example.invalid"), nil, nil)
	_, err := e.ProcessReading(reading("sensor1"), nil)
	require.NoError(t, err)
	require.True(t, e.assetSent["sensor1"])

	e.InvalidateSchema()
	assert.False(t, e.assetSent["sensor1"])

	fragment, err := e.ProcessReading(reading("sensor1"), nil)
	require.NoError(t, err)
	assert.Contains(t, fragment, "FledgeAsset")
}
