package domain

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"
)

// TimestampLayout is the layout of the persisted record timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// SlotState is the lifecycle state of a cache slot.
type SlotState string

const (
	// SlotNew means nothing has been persisted for the slot yet.
	SlotNew SlotState = "NEW"
	// SlotExists means a prior record is present.
	SlotExists SlotState = "EXISTS"
	// SlotTaint means the record was removed and the slot always misses.
	SlotTaint SlotState = "TAINT"
	// SlotDisabled means caching is bypassed for the slot.
	SlotDisabled SlotState = "DISABLED"
)

// Settings is the declared configuration of a cached action.
// Timeout is in seconds; nil means the record never expires.
type Settings struct {
	Name              string          `json:"name"`
	Inputs            []string        `json:"inputs"`
	Outputs           []string        `json:"outputs"`
	Timeout           *int64          `json:"timeout"`
	CacheInvalidation json.RawMessage `json:"cache_invalidation"`
	FunctionCodeHash  string          `json:"function_code_hash"`
}

// Mismatch returns the name of the first persisted field that differs from other,
// or an empty string when both describe the same action. Timeout is not compared.
func (s Settings) Mismatch(other Settings) string {
	switch {
	case s.Name != other.Name:
		return "name"
	case !patternsEqual(s.Inputs, other.Inputs):
		return "inputs"
	case !patternsEqual(s.Outputs, other.Outputs):
		return "outputs"
	case !rawEqual(s.CacheInvalidation, other.CacheInvalidation):
		return "cache_invalidation"
	case s.FunctionCodeHash != other.FunctionCodeHash:
		return "function_code_hash"
	default:
		return ""
	}
}

// patternsEqual treats a nil list (whole tree) and an empty list (nothing) as different.
func patternsEqual(a, b []string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return slices.Equal(a, b)
}

func rawEqual(a, b json.RawMessage) bool {
	if isNull(a) && isNull(b) {
		return true
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// RunInfo is the recorded result of a completed cached run.
type RunInfo struct {
	Inputs    *FileSet
	Outputs   *FileSet
	CreatedAt time.Time
}

// Record is the persisted shape of a cache slot.
type Record struct {
	Settings  *Settings      `json:"settings"`
	Timestamp string         `json:"timestamp"`
	Meta      map[string]any `json:"meta"`
	State     *RecordState   `json:"state"`
}

// RecordState holds the input and output snapshots of a record.
type RecordState struct {
	Inputs  map[string]Fingerprint `json:"inputs"`
	Outputs map[string]Fingerprint `json:"outputs"`
}
