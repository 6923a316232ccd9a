package north

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charithmadhuranga/fledge/north/omf"
)

type fakeSource struct {
	mu       sync.Mutex
	rows     []map[string]any
	progress int64
}

func (f *fakeSource) FetchReadings(_ context.Context, after int64, limit int) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, row := range f.rows {
		id, _ := row["id"].(int64)
		if id > after {
			out = append(out, row)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSource) StreamProgress(_ context.Context, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress, nil
}

func (f *fakeSource) SetStreamProgress(_ context.Context, _ string, lastID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = lastID
	return nil
}

func TestScheduler_ForwardOnce_SendsAndAdvancesCursor(t *testing.T) {
	var dataPosts, containerPosts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("messagetype") {
		case "data":
			dataPosts++
		case "container":
			containerPosts++
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	source := &fakeSource{rows: []map[string]any{
		{"id": int64(1), "asset_code": "sensor1", "user_ts": "2024-01-02 03:04:05+00:00", "reading": map[string]any{"temperature": 21.5}},
		{"id": int64(2), "asset_code": "sensor1", "user_ts": "2024-01-02 03:04:06+00:00", "reading": map[string]any{"temperature": 22.0}},
	}}

	emitter := omf.New(omf.DefaultConfig(server.URL), nil, nil)
	sched := New(DefaultConfig("test-stream"), source, emitter, nil, nil, nil)

	sent, full, err := sched.forwardOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.False(t, full)
	assert.Equal(t, int64(2), source.progress)
	assert.Equal(t, 1, dataPosts)
	assert.Equal(t, 1, containerPosts)

	sent, _, err = sched.forwardOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestScheduler_ForwardOnce_BadRequestBlocksValueBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("messagetype") == "container" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	source := &fakeSource{rows: []map[string]any{
		{"id": int64(1), "asset_code": "sensor1", "user_ts": "2024-01-02 03:04:05+00:00", "reading": map[string]any{"temperature": 21.5}},
	}}

	emitter := omf.New(omf.DefaultConfig(server.URL), nil, nil)
	sched := New(DefaultConfig("test-stream"), source, emitter, nil, nil, nil)

	sent, _, err := sched.forwardOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, int64(0), source.progress)
}
