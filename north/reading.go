package north

import (
	"encoding/json"
	"fmt"

	"github.com/charithmadhuranga/fledge/lazyjson"
	"github.com/charithmadhuranga/fledge/storage"
	"github.com/charithmadhuranga/fledge/types"
)

// RowToReading converts one row returned by storage.Engine.FetchReadings
// (id, asset_code, read_key, reading, user_ts, ts) back into a typed
// Reading, and separately pulls any OMF emission hints out of the
// reading payload with a LazyJSON scan rather than a second full
// unmarshal — the one place on the north-forwarding path where the
// "streaming scanner that never allocates a full tree" property (spec
// §1, §4.A) actually pays for itself: the hint object is small and
// usually absent, and the datapoint set itself has to be unmarshalled
// anyway since its keys aren't known ahead of time.
func RowToReading(row map[string]any) (*types.Reading, map[string]string, error) {
	assetCode, _ := row["asset_code"].(string)
	if assetCode == "" {
		return nil, nil, fmt.Errorf("row %v missing asset_code", row["id"])
	}
	userTsStr, _ := row["user_ts"].(string)
	userTs, err := parseFetchedTimestamp(userTsStr)
	if err != nil {
		return nil, nil, fmt.Errorf("row %v has unparsable user_ts %q: %w", row["id"], userTsStr, err)
	}
	readKey, _ := row["read_key"].(string)

	raw, err := json.Marshal(row["reading"])
	if err != nil {
		return nil, nil, fmt.Errorf("re-encode reading payload for asset %s: %w", assetCode, err)
	}

	datapoints, err := decodeDatapoints(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode datapoints for asset %s: %w", assetCode, err)
	}

	return &types.Reading{
		AssetCode:  assetCode,
		UserTs:     userTs,
		ReadKey:    readKey,
		Datapoints: datapoints,
	}, scanHints(raw), nil
}

// parseFetchedTimestamp turns a FetchReadings-projected user_ts string
// into a canonical Unix-microsecond timestamp (spec §3's userTs
// precision), reusing the same normalize-then-parse path the append side
// uses (storage.ParseTimestamp), so a fixed point of formatDate on the
// way in is also a fixed point on the way back out (spec §8's round-trip
// property).
func parseFetchedTimestamp(s string) (int64, error) {
	return storage.ParseTimestamp(s)
}

// decodeDatapoints turns the flat reading JSON object into an ordered
// Datapoint slice. Datapoint names aren't known ahead of time, so this
// is a plain unmarshal rather than a LazyJSON walk — LazyJSON has no
// generic "next key" operation (only attribute-by-known-name and array
// iteration, per spec §4.A), which fits scanHints below but not this.
func decodeDatapoints(raw []byte) ([]types.Datapoint, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	datapoints := make([]types.Datapoint, 0, len(fields))
	for name, value := range fields {
		datapoints = append(datapoints, types.Datapoint{Name: name, Value: decodeValue(value)})
	}
	return datapoints, nil
}

func decodeValue(raw json.RawMessage) types.Value {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return types.NewStringValue(string(raw))
	}
	switch t := v.(type) {
	case string:
		return types.NewStringValue(t)
	case float64:
		if t == float64(int64(t)) {
			return types.NewIntegerValue(int64(t))
		}
		return types.NewFloatValue(t)
	case bool:
		if t {
			return types.NewIntegerValue(1)
		}
		return types.NewIntegerValue(0)
	case nil:
		return types.NewStringValue("")
	default:
		return types.NewJSONValue(raw)
	}
}

// scanHints looks for the reserved OMFHint datapoint in raw and, if
// present and an object, pulls OMFTagNameHint/OMFTagHint out of it with
// a LazyJSON scan — a targeted attribute lookup, not a parse of the
// whole payload.
func scanHints(raw []byte) map[string]string {
	hints := map[string]string{}

	scanner := lazyjson.New(raw)
	hintPos, ok := scanner.GetAttribute(types.OMFHintDatapoint)
	if !ok || !scanner.IsObject(hintPos) {
		return hints
	}
	if _, ok := scanner.GetObject(hintPos); !ok {
		return hints
	}
	defer scanner.PopState()

	if v, ok := scanner.GetAttribute(types.OMFTagNameHint); ok {
		if s, ok := scanner.GetString(v); ok {
			hints[types.OMFTagNameHint] = s
		}
	}
	if v, ok := scanner.GetAttribute(types.OMFTagHint); ok {
		if s, ok := scanner.GetString(v); ok {
			hints[types.OMFTagHint] = s
		}
	}
	return hints
}
