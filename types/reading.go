// Package types contains the Reading/Datapoint domain model shared by the
// ingest, filter, storage, and north-forwarding packages.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the underlying representation carried by a Value.
type ValueKind int

const (
	// ValueString holds a UTF-8 string.
	ValueString ValueKind = iota
	// ValueInteger holds a 64-bit signed integer.
	ValueInteger
	// ValueFloat holds a 64-bit floating point number.
	ValueFloat
	// ValueJSON holds an arbitrary JSON object, kept as raw text.
	ValueJSON
	// ValueArray holds an ordered sequence of Values.
	ValueArray
	// ValueBuffer holds opaque binary data.
	ValueBuffer
)

// String returns a human-readable name for the kind, used in error
// messages and logging.
func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueInteger:
		return "integer"
	case ValueFloat:
		return "float"
	case ValueJSON:
		return "json"
	case ValueArray:
		return "array"
	case ValueBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}

// Value is a tagged variant over the datapoint value types a reading can
// carry. Only one of the typed fields is meaningful, selected by Kind.
type Value struct {
	Kind    ValueKind
	Str     string
	Int     int64
	Float   float64
	JSON    json.RawMessage
	Array   []Value
	Buffer  []byte
}

// NewStringValue builds a string-kinded Value.
func NewStringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// NewIntegerValue builds an integer-kinded Value.
func NewIntegerValue(i int64) Value { return Value{Kind: ValueInteger, Int: i} }

// NewFloatValue builds a float-kinded Value.
func NewFloatValue(f float64) Value { return Value{Kind: ValueFloat, Float: f} }

// NewJSONValue builds a JSON-object-kinded Value from raw JSON text.
func NewJSONValue(raw json.RawMessage) Value { return Value{Kind: ValueJSON, JSON: raw} }

// NewArrayValue builds an array-kinded Value.
func NewArrayValue(v []Value) Value { return Value{Kind: ValueArray, Array: v} }

// NewBufferValue builds a buffer-kinded Value.
func NewBufferValue(b []byte) Value { return Value{Kind: ValueBuffer, Buffer: b} }

// IsOMFSupported reports whether the OMF emitter can represent this
// value's kind directly (spec §3: datapoints whose Value tag is not one
// of String/Integer/Float are silently skipped by the OMF emitter).
func (v Value) IsOMFSupported() bool {
	return v.Kind == ValueString || v.Kind == ValueInteger || v.Kind == ValueFloat
}

// OMFBaseType returns the OMF container base type this value maps to:
// "String" for a string value, "Double" for both Integer and Float.
// Callers must check IsOMFSupported first.
func (v Value) OMFBaseType() string {
	if v.Kind == ValueString {
		return "String"
	}
	return "Double"
}

// String renders the value as a JSON literal suitable for direct
// emission into an OMF payload or storage insert.
func (v Value) String() string {
	switch v.Kind {
	case ValueString:
		b, _ := json.Marshal(v.Str)
		return string(b)
	case ValueInteger:
		return strconv.FormatInt(v.Int, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ValueJSON:
		if len(v.JSON) == 0 {
			return "null"
		}
		return string(v.JSON)
	case ValueArray:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range v.Array {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(e.String())
		}
		b.WriteByte(']')
		return b.String()
	case ValueBuffer:
		b, _ := json.Marshal(v.Buffer)
		return string(b)
	default:
		return "null"
	}
}

// MarshalJSON implements json.Marshaler so a Value serializes as its
// natural JSON representation rather than as the tagged struct.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueString:
		return json.Marshal(v.Str)
	case ValueInteger:
		return json.Marshal(v.Int)
	case ValueFloat:
		return json.Marshal(v.Float)
	case ValueJSON:
		if len(v.JSON) == 0 {
			return []byte("null"), nil
		}
		return v.JSON, nil
	case ValueArray:
		return json.Marshal(v.Array)
	case ValueBuffer:
		return json.Marshal(v.Buffer)
	default:
		return []byte("null"), nil
	}
}

// Datapoint is a single named value within a Reading. Names are unique
// within a reading's datapoint list.
type Datapoint struct {
	Name  string
	Value Value
}

// Reserved datapoint names that carry OMF emission hints rather than
// sensor values (spec §4.F step 1 and 3).
const (
	OMFHintDatapoint     = "OMFHint"
	OMFTagNameHint       = "OMFTagNameHint"
	OMFTagHint           = "OMFTagHint"
)

// Reading is an immutable timestamped observation for an asset.
type Reading struct {
	AssetCode  string
	UserTs     int64 // canonical Unix-microsecond timestamp (spec §3: userTs carries microsecond precision)
	Ts         int64 // server-side receipt timestamp, Unix microseconds
	ReadKey    string
	Datapoints []Datapoint
}

// Validate checks the invariant every Reading must satisfy: a non-empty
// asset code and a parseable user timestamp (spec §3).
func (r Reading) Validate() error {
	if r.AssetCode == "" {
		return fmt.Errorf("reading missing asset_code")
	}
	if r.UserTs == 0 {
		return fmt.Errorf("reading %s missing a parseable user_ts", r.AssetCode)
	}
	return nil
}

// Datapoint returns the named datapoint and true if present.
func (r Reading) Datapoint(name string) (Datapoint, bool) {
	for _, dp := range r.Datapoints {
		if dp.Name == name {
			return dp, true
		}
	}
	return Datapoint{}, false
}

// AssetDateUserTime formats UserTs the way OMF expects it: no timezone,
// microsecond precision (spec §4.G, FMT_STANDARD). The OMF emitter
// appends "Z" itself.
func (r Reading) AssetDateUserTime() string {
	t := time.UnixMicro(r.UserTs).UTC()
	return t.Format("2006-01-02 15:04:05.000000")
}
