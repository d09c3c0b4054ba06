// Package settings holds the per-plugin parameter record.
//
// A Settings value is immutable once built: every change goes through Merge,
// which returns a new record and the list of keys that actually changed.
// Numeric knobs and toggles live in the numeric map (toggles as 0/1), enum
// fields live in the string map.
package settings

import (
	"math"
	"slices"
)

// Settings is an immutable flat parameter record for one plugin instance.
type Settings struct {
	num map[string]float64
	str map[string]string
}

// Patch is a partial settings update as delivered by the UI.
// Accepted value types are float64, float32, int, int64, bool and string;
// anything else is ignored.
type Patch map[string]any

// New builds a Settings value from a patch.
func New(values Patch) Settings {
	s, _ := Merge(Settings{}, values)
	return s
}

// Num returns a numeric field, or def if missing.
func (s Settings) Num(key string, def float64) float64 {
	v, ok := s.num[key]
	if !ok {
		return def
	}

	return v
}

// Has reports whether a numeric field is present.
func (s Settings) Has(key string) bool {
	_, ok := s.num[key]
	return ok
}

// Bool returns a toggle field. Missing toggles read as false.
func (s Settings) Bool(key string) bool {
	return s.num[key] >= 0.5
}

// Str returns an enum field, or def if missing.
func (s Settings) Str(key, def string) string {
	v, ok := s.str[key]
	if !ok {
		return def
	}

	return v
}

// Keys returns all field names in sorted order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s.num)+len(s.str))
	for k := range s.num {
		keys = append(keys, k)
	}

	for k := range s.str {
		if _, dup := s.num[k]; !dup {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	return keys
}

// NumKeys returns the numeric field names in sorted order.
func (s Settings) NumKeys() []string {
	keys := make([]string, 0, len(s.num))
	for k := range s.num {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

// Len returns the number of fields.
func (s Settings) Len() int {
	return len(s.Keys())
}

// Patch returns the record as a patch, suitable for Merge or serialization.
func (s Settings) Patch() Patch {
	p := make(Patch, len(s.num)+len(s.str))
	for k, v := range s.num {
		p[k] = v
	}

	for k, v := range s.str {
		p[k] = v
	}

	return p
}

// Merge applies patch on top of prev and returns the new record together with
// the sorted names of the fields whose value changed. prev is left untouched.
// Non-finite numbers and unsupported value types are dropped.
func Merge(prev Settings, patch Patch) (Settings, []string) {
	next := Settings{
		num: make(map[string]float64, len(prev.num)+len(patch)),
		str: make(map[string]string, len(prev.str)),
	}

	for k, v := range prev.num {
		next.num[k] = v
	}

	for k, v := range prev.str {
		next.str[k] = v
	}

	var changed []string

	for k, raw := range patch {
		if k == "" {
			continue
		}

		if s, ok := raw.(string); ok {
			if old, had := next.str[k]; had && old == s {
				continue
			}

			next.str[k] = s
			delete(next.num, k)

			changed = append(changed, k)

			continue
		}

		v, ok := toFloat(raw)
		if !ok {
			continue
		}

		if old, had := next.num[k]; had && old == v {
			continue
		}

		next.num[k] = v
		delete(next.str, k)

		changed = append(changed, k)
	}

	slices.Sort(changed)

	return next, changed
}

func toFloat(raw any) (float64, bool) {
	var v float64

	switch t := raw.(type) {
	case float64:
		v = t
	case float32:
		v = float64(t)
	case int:
		v = float64(t)
	case int64:
		v = float64(t)
	case bool:
		if t {
			v = 1
		}
	default:
		return 0, false
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return v, true
}
