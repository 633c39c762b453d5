package docstore

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// codec maps Fields onto structs using `doc` tags.
var codec = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	TagKey:                 "doc",
}.Froze()

// Decode copies document fields into v, a pointer to a struct with `doc` tags.
func Decode(fields Fields, v any) error {
	raw, err := codec.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	if err := codec.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	return nil
}

// Merge applies patch over base. With merge false the patch replaces base.
func Merge(base, patch Fields, merge bool) Fields {
	out := make(Fields, len(base)+len(patch))
	if merge {
		for k, v := range base {
			out[k] = v
		}
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Clone copies the top level of f.
func Clone(f Fields) Fields {
	return Merge(nil, f, false)
}

// Compare orders two field values of the same kind. Missing values sort first.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

// Equal reports whether two field values match an equality filter.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if _, ok := asFloat(a); ok {
		if _, ok := asFloat(b); ok {
			return Compare(a, b) == 0
		}
		return false
	}
	if _, ok := asTime(a); ok {
		return Compare(a, b) == 0
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Matches reports whether fields satisfy every filter of q.
func Matches(q Query, fields Fields) bool {
	for _, f := range q.Filters {
		v, ok := fields[f.Field]
		if !ok || !Equal(v, f.Value) {
			return false
		}
	}
	return true
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
