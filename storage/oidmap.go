package storage

import (
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// decodeFunc converts a raw column value (already text-decoded by pgx)
// into the JSON-ready value the result-set serializer emits.
type decodeFunc func(raw string) any

// oidDecoders maps a Postgres type OID to the decoder for that type.
// Spec §9 calls out hard-coded inline OID checks for re-architecture;
// this table is that re-architecture; new column types are added here,
// not by threading another if-chain through the serializer.
var oidDecoders = map[uint32]decodeFunc{
	pgtype.Int2OID:        decodeInteger,
	pgtype.Int4OID:        decodeInteger,
	pgtype.Int8OID:        decodeInteger,
	pgtype.Float4OID:      decodeFloat,
	pgtype.Float8OID:      decodeFloat,
	pgtype.JSONBOID:       decodeJSONB,
	pgtype.JSONOID:        decodeJSONB,
	pgtype.BPCharOID:      decodeTrimmedText,
	pgtype.TimestamptzOID: decodeText,
}

// decodeColumn returns the JSON-ready representation of a column value
// given its reported OID, per spec §4.C's result-set serialization
// rules. Unknown OIDs and empty text both fall back to a plain string
// ("" for empty regardless of OID).
func decodeColumn(oid uint32, raw string, isNull bool) any {
	if isNull {
		return nil
	}
	if raw == "" {
		return ""
	}
	if fn, ok := oidDecoders[oid]; ok {
		return fn(raw)
	}
	return raw
}

func decodeInteger(raw string) any {
	return parseInt(raw)
}

func decodeFloat(raw string) any {
	return parseFloat(raw)
}

func decodeTrimmedText(raw string) any {
	return strings.TrimRight(raw, " ")
}

func decodeText(raw string) any {
	return raw
}

func decodeJSONB(raw string) any {
	return parseJSON(raw)
}
