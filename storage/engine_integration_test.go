package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/charithmadhuranga/fledge/errors"
	"github.com/charithmadhuranga/fledge/perfmon"
	"github.com/charithmadhuranga/fledge/types"
)

const schemaSQL = `
CREATE TABLE readings (
	id SERIAL PRIMARY KEY,
	asset_code TEXT NOT NULL,
	read_key TEXT,
	reading JSONB NOT NULL,
	user_ts TIMESTAMPTZ NOT NULL,
	ts TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE statistics (
	key TEXT PRIMARY KEY,
	description TEXT,
	value BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE monitors (
	service TEXT NOT NULL,
	name TEXT NOT NULL,
	minimum DOUBLE PRECISION NOT NULL,
	average DOUBLE PRECISION NOT NULL,
	maximum DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (service, name)
);
CREATE TABLE streams (
	name TEXT PRIMARY KEY,
	last_id BIGINT NOT NULL DEFAULT 0
);
`

func startPostgresContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "fledge",
			"POSTGRES_PASSWORD": "fledge",
			"POSTGRES_DB":       "fledge",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://fledge:fledge@%s:%s/fledge", host, port.Port())

	// Postgres inside the container takes a moment past the listening
	// port becoming available before it accepts connections.
	time.Sleep(500 * time.Millisecond)

	return container, connStr
}

func newTestEngine(ctx context.Context, t *testing.T) *Engine {
	container, connStr := startPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	engine, err := Open(ctx, DefaultConfig(connStr), nil, errors.DiscardSink)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	_, err = engine.pool.Exec(ctx, schemaSQL)
	require.NoError(t, err)

	return engine
}

func TestIntegration_AppendAndFetchReadings(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(ctx, t)

	reading := &types.Reading{
		AssetCode: "sensor1",
		UserTs:    1704164645123000,
		Datapoints: []types.Datapoint{
			{Name: "temperature", Value: types.NewFloatValue(21.5)},
		},
	}

	n, err := engine.AppendReadings(ctx, []*types.Reading{reading})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := engine.FetchReadings(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "sensor1", rows[0]["asset_code"])
}

func TestIntegration_TableSize(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(ctx, t)

	size, err := engine.TableSize(ctx, "readings")
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)

	_, err = engine.AppendReadings(ctx, []*types.Reading{
		{AssetCode: "sensor1", UserTs: 1704164645123000},
	})
	require.NoError(t, err)

	size, err = engine.TableSize(ctx, "readings")
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestIntegration_AssetStatsCreationAndFlush(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(ctx, t)

	exists, err := engine.AssetExists(ctx, "sensor1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, engine.CreateAsset(ctx, "sensor1"))

	exists, err = engine.AssetExists(ctx, "sensor1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, engine.FlushStats(ctx,
		map[string]int64{"sensor1": 3},
		map[string]int64{"READINGS": 3}))

	var value int64
	err = engine.pool.QueryRow(ctx, `SELECT value FROM statistics WHERE key = 'READINGS_sensor1'`).Scan(&value)
	require.NoError(t, err)
	assert.Equal(t, int64(3), value)
}

func TestIntegration_FlushPerfMonUpserts(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(ctx, t)

	require.NoError(t, engine.FlushPerfMon(ctx, "southd", map[string]perfmon.Snapshot{
		"drain": {Min: 1, Avg: 2, Max: 3},
	}))

	var min, avg, max float64
	err := engine.pool.QueryRow(ctx,
		`SELECT minimum, average, maximum FROM monitors WHERE service = 'southd' AND name = 'drain'`).
		Scan(&min, &avg, &max)
	require.NoError(t, err)
	assert.Equal(t, 1.0, min)
	assert.Equal(t, 2.0, avg)
	assert.Equal(t, 3.0, max)

	require.NoError(t, engine.FlushPerfMon(ctx, "southd", map[string]perfmon.Snapshot{
		"drain": {Min: 10, Avg: 20, Max: 30},
	}))
	err = engine.pool.QueryRow(ctx,
		`SELECT minimum, average, maximum FROM monitors WHERE service = 'southd' AND name = 'drain'`).
		Scan(&min, &avg, &max)
	require.NoError(t, err)
	assert.Equal(t, 10.0, min, "second flush overwrites rather than accumulates")
}

func TestIntegration_StreamProgressDefaultsToZeroThenPersists(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(ctx, t)

	last, err := engine.StreamProgress(ctx, "omf-north")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	require.NoError(t, engine.SetStreamProgress(ctx, "omf-north", 42))

	last, err = engine.StreamProgress(ctx, "omf-north")
	require.NoError(t, err)
	assert.Equal(t, int64(42), last)

	require.NoError(t, engine.SetStreamProgress(ctx, "omf-north", 100))
	last, err = engine.StreamProgress(ctx, "omf-north")
	require.NoError(t, err)
	assert.Equal(t, int64(100), last)
}

func TestIntegration_PurgeReadingsRetainsUnsent(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(ctx, t)

	old := time.Now().Add(-100 * time.Hour).UnixMicro()
	recent := time.Now().UnixMicro()

	_, err := engine.AppendReadings(ctx, []*types.Reading{
		{AssetCode: "sensor1", UserTs: old},
		{AssetCode: "sensor1", UserTs: recent},
	})
	require.NoError(t, err)

	result, err := engine.PurgeReadings(ctx, 72, PurgeFlagRetainUnsent, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Removed, "sent=0 means both rows are unsent and retained")

	size, err := engine.TableSize(ctx, "readings")
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}
