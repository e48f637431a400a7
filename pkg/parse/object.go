package parse

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/iancoleman/strcase"
)

// Object is an untyped JSON object as produced by an unreliable upstream.
//
// Values are only read through the accessors below, which take an ordered
// list of alternate key names and return the first usable match.
type Object map[string]any

// AsObject converts v to an Object if it is a JSON object.
func AsObject(v any) (Object, bool) {
	switch tv := v.(type) {
	case Object:
		return tv, true
	case map[string]any:
		return Object(tv), true
	default:
		return nil, false
	}
}

// Lookup returns the value of the first key in keys that is present.
//
// Each key is tried verbatim first. If no key matches verbatim, keys are
// compared in snake_case form so that merchantAddress, MerchantAddress and
// merchant_address resolve to the same entry.
func (o Object) Lookup(keys ...string) (any, string, bool) {
	if o == nil {
		return nil, "", false
	}
	for _, k := range keys {
		if v, ok := o[k]; ok && v != nil {
			return v, k, true
		}
	}

	present := make([]string, 0, len(o))
	for k := range o {
		present = append(present, k)
	}
	sort.Strings(present)
	for _, k := range keys {
		want := strcase.ToSnake(k)
		for _, p := range present {
			if o[p] == nil {
				continue
			}
			if strcase.ToSnake(p) == want {
				return o[p], p, true
			}
		}
	}
	return nil, "", false
}

// String returns the first non-empty string value among keys.
func (o Object) String(keys ...string) (string, bool) {
	for _, k := range keys {
		v, _, ok := o.Lookup(k)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// Object returns the first nested object among keys.
func (o Object) Object(keys ...string) (Object, bool) {
	for _, k := range keys {
		v, _, ok := o.Lookup(k)
		if !ok {
			continue
		}
		if obj, ok := AsObject(v); ok {
			return obj, true
		}
	}
	return nil, false
}

// Array returns the first array value among keys.
func (o Object) Array(keys ...string) ([]any, bool) {
	for _, k := range keys {
		v, _, ok := o.Lookup(k)
		if !ok {
			continue
		}
		if arr, ok := v.([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

// Float returns the first numeric value among keys. Numeric strings are accepted.
func (o Object) Float(keys ...string) (float64, bool) {
	for _, k := range keys {
		v, _, ok := o.Lookup(k)
		if !ok {
			continue
		}
		if f, ok := ToFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// ToFloat converts the numeric representations found in decoded JSON to float64.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch tv := v.(type) {
	case json.Number:
		parsed, err := tv.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = tv
	case float32:
		f = float64(tv)
	case int:
		f = float64(tv)
	case int64:
		f = float64(tv)
	case uint64:
		f = float64(tv)
	case string:
		parsed, err := strconv.ParseFloat(tv, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
