package lode

import (
	"time"

	"github.com/pithecene-io/sliderule/types"
)

// RecordKindRecord marks a stored decoded record.
const RecordKindRecord = "record"

// RecordRow is the storage format of one decoded record.
// Partition key fields must be present for the Hive layout.
type RecordRow struct {
	RecordKind string         `json:"record_kind"`
	Seq        int64          `json:"seq"`
	Attempt    int            `json:"attempt"`
	Ts         string         `json:"ts"`
	Record     map[string]any `json:"record"`

	// Partition keys
	API        string `json:"api"`
	Day        string `json:"day"`
	RequestID  string `json:"request_id"`
	RecordType string `json:"record_type"`
}

// toRecordRow converts a record to its storage map. Maps are written
// rather than structs so the Hive layout can read partition keys.
func toRecordRow(meta *types.RequestMeta, day string, seq int64, ts time.Time, rec *types.Record) map[string]any {
	return map[string]any{
		"record_kind": RecordKindRecord,
		"seq":         seq,
		"attempt":     meta.Attempt,
		"ts":          ts.UTC().Format(time.RFC3339Nano),
		"record":      rec.Map(),
		"api":         meta.API,
		"day":         day,
		"request_id":  meta.RequestID,
		"record_type": rec.Type,
	}
}

// fromRow converts a stored map back to a RecordRow.
func fromRow(m map[string]any) RecordRow {
	row := RecordRow{
		RecordKind: toString(m["record_kind"]),
		Seq:        toInt64(m["seq"]),
		Attempt:    int(toInt64(m["attempt"])),
		Ts:         toString(m["ts"]),
		API:        toString(m["api"]),
		Day:        toString(m["day"]),
		RequestID:  toString(m["request_id"]),
		RecordType: toString(m["record_type"]),
	}
	if rec, ok := m["record"].(map[string]any); ok {
		row.Record = rec
	}
	return row
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
