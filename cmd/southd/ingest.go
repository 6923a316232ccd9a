package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charithmadhuranga/fledge/ingest"
	"github.com/charithmadhuranga/fledge/pkg/timestamp"
	"github.com/charithmadhuranga/fledge/storage"
	"github.com/charithmadhuranga/fledge/types"
)

// readingPayload is the wire shape a south plugin posts to /ingest: a
// natural JSON rendering of types.Reading, since Reading's own Value
// type only implements MarshalJSON (it serializes as its natural
// representation, not as a tagged union a plugin could produce).
type readingPayload struct {
	AssetCode  string             `json:"asset_code"`
	UserTs     any                `json:"user_ts"`
	ReadKey    string             `json:"read_key,omitempty"`
	Datapoints []datapointPayload `json:"datapoints"`
}

type datapointPayload struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func toValue(raw any) types.Value {
	switch v := raw.(type) {
	case string:
		return types.NewStringValue(v)
	case float64:
		if v == float64(int64(v)) {
			return types.NewIntegerValue(int64(v))
		}
		return types.NewFloatValue(v)
	case bool:
		if v {
			return types.NewIntegerValue(1)
		}
		return types.NewIntegerValue(0)
	default:
		encoded, _ := json.Marshal(v)
		return types.NewJSONValue(encoded)
	}
}

// parseUserTs turns a decoded user_ts JSON value into Unix microseconds
// (spec §3's microsecond-precision userTs). A string is tried first
// against the canonical grammar spec.md §4.C documents ("YYYY-MM-DD
// HH:MM:SS[.fraction][±HH[:MM]]", the same one storage/normalize.go
// applies on the append path) so sub-millisecond precision survives the
// round trip into storage; anything that doesn't match (RFC3339, a bare
// epoch number, a JSON number) falls back to timestamp.Parse's looser
// handling, scaled from milliseconds up to microseconds.
func parseUserTs(raw any) int64 {
	if s, ok := raw.(string); ok && s != "" {
		if us, err := storage.ParseTimestamp(s); err == nil {
			return us
		}
	}
	return timestamp.Parse(raw) * 1000
}

func (p readingPayload) toReading() *types.Reading {
	datapoints := make([]types.Datapoint, 0, len(p.Datapoints))
	for _, dp := range p.Datapoints {
		datapoints = append(datapoints, types.Datapoint{Name: dp.Name, Value: toValue(dp.Value)})
	}
	return &types.Reading{
		AssetCode:  p.AssetCode,
		UserTs:     parseUserTs(p.UserTs),
		ReadKey:    p.ReadKey,
		Datapoints: datapoints,
	}
}

// ingestHandler decodes a batch of readings and hands them to the queue.
// It is the concrete south-plugin transport for this deployment; the
// plugin protocol itself is out of scope (spec.md treats "south plugin"
// as an external producer of ingest(Reading)/ingest(vector<Reading*>)).
func ingestHandler(queue *ingest.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var payloads []readingPayload
		if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
			http.Error(w, fmt.Sprintf("decode readings: %v", err), http.StatusBadRequest)
			return
		}

		readings := make([]*types.Reading, 0, len(payloads))
		for _, p := range payloads {
			reading := p.toReading()
			if err := reading.Validate(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			readings = append(readings, reading)
		}

		if err := queue.IngestBatch(readings); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusAccepted)
		_, _ = fmt.Fprintf(w, `{"accepted":%d}`, len(readings))
	}
}
