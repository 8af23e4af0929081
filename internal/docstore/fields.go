package docstore

import (
	"encoding/json"
	"fmt"
	"time"
)

const timestampKey = "$timestamp"

type fieldSentinel struct{ name string }

var (
	// ServerTimestamp is replaced with the commit time when written.
	ServerTimestamp = fieldSentinel{"serverTimestamp"}
	// DeleteField removes the field from the document on Update.
	DeleteField = fieldSentinel{"deleteField"}
)

// Timestamp is the store's distinguished date-time value. It round-trips
// through JSON as {"$timestamp": "<RFC3339Nano>"} so it can be told apart
// from ordinary strings.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{timestampKey: t.UTC().Format(time.RFC3339Nano)})
}

// TimeOf converts a stored field value to a time.Time. Timestamps, time.Time
// values and RFC3339 strings are accepted.
func TimeOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case Timestamp:
		return t.Time, true
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// normalize resolves sentinels and converts time.Time values to Timestamp,
// recursing into maps and slices.
func normalize(v any, now time.Time) any {
	switch val := v.(type) {
	case fieldSentinel:
		if val == ServerTimestamp {
			return Timestamp{now}
		}
		return nil
	case time.Time:
		return Timestamp{val.UTC()}
	case *time.Time:
		if val == nil {
			return nil
		}
		return Timestamp{val.UTC()}
	case Fields:
		return normalizeMap(val, now)
	case map[string]any:
		return normalizeMap(val, now)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item, now)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeMap(item, now)
		}
		return out
	default:
		return v
	}
}

func normalizeMap(m map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v, now)
	}
	return out
}

// merge applies patch onto base. DeleteField removes keys.
func merge(base, patch Fields, now time.Time) Fields {
	out := make(Fields, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if v == DeleteField {
			delete(out, k)
			continue
		}
		out[k] = normalize(v, now)
	}
	return out
}

func encodeFields(f Fields) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func decodeFields(data []byte) (Fields, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	out := make(Fields, len(raw))
	for k, v := range raw {
		out[k] = decodeValue(v)
	}
	return out, nil
}

func decodeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 1 {
			if s, ok := val[timestampKey].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return Timestamp{t}
				}
			}
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = decodeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = decodeValue(item)
		}
		return out
	default:
		return v
	}
}
