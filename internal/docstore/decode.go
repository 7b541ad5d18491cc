package docstore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// DataTo decodes the document into v using `firestore` struct tags.
// Timestamps may arrive as time.Time (Firestore, memory) or as RFC 3339
// strings (Postgres).
func (d *Document) DataTo(v any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "firestore",
		Result:  v,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			sentinelToZeroHook,
		),
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(d.Data); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// sentinelToZeroHook drops unresolved sentinels so a document written in the
// same process can be decoded before the backend has replaced them.
func sentinelToZeroHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if _, ok := data.(sentinel); ok {
		return reflect.Zero(to).Interface(), nil
	}
	return data, nil
}

// Field returns the value stored under a dotted path.
func (d *Document) Field(fieldPath string) (any, bool) {
	return lookup(d.Data, fieldPath)
}

func lookup(data map[string]any, fieldPath string) (any, bool) {
	var cur any = data
	for _, f := range Fields(fieldPath) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[f]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath assigns value under a dotted path, creating intermediate maps.
func setPath(data map[string]any, fieldPath string, value any) {
	fields := Fields(fieldPath)
	cur := data
	for _, f := range fields[:len(fields)-1] {
		next, ok := cur[f].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[f] = next
		}
		cur = next
	}
	last := fields[len(fields)-1]
	if value == DeleteField {
		delete(cur, last)
		return
	}
	cur[last] = value
}

// resolve returns a deep copy of data with ServerTimestamp replaced by now.
func resolve(data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = resolveValue(v, now)
	}
	return out
}

func resolveValue(v any, now time.Time) any {
	switch val := v.(type) {
	case map[string]any:
		return resolve(val, now)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = resolveValue(e, now)
		}
		return out
	case sentinel:
		if val == ServerTimestamp {
			return now
		}
		return nil
	default:
		return v
	}
}
