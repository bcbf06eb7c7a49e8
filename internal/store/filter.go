package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"techcomm/internal/apperr"
)

type Op string

const (
	OpEquals Op = "=="
	OpOneOf  Op = "in"
)

// Filter is a single predicate on a dotted JSON field path. Filters passed
// together are AND-combined.
type Filter struct {
	Field  string
	Op     Op
	Values []any
}

// Equals matches documents whose field equals value.
func Equals(field string, value any) Filter {
	f := Filter{Field: field, Op: OpEquals}
	if value != nil {
		f.Values = []any{value}
	}
	return f
}

// OneOf matches documents whose field equals any of values. Nil values are
// dropped; with no values left the filter matches nothing.
func OneOf[T any](field string, values ...T) Filter {
	f := Filter{Field: field, Op: OpOneOf}
	for _, v := range values {
		if any(v) == nil {
			continue
		}
		f.Values = append(f.Values, v)
	}
	return f
}

func (f Filter) String() string {
	if f.Op == OpEquals && len(f.Values) == 1 {
		return fmt.Sprintf("%s == %v", f.Field, f.Values[0])
	}
	return fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Values)
}

// Path splits the field into its segments.
func (f Filter) Path() []string {
	return strings.Split(f.Field, ".")
}

var fieldPath = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidateFilters checks field paths, operators and that every value is a
// scalar.
func ValidateFilters(op string, filters []Filter) error {
	for _, f := range filters {
		if !fieldPath.MatchString(f.Field) {
			return apperr.Validation(op, "invalid filter field %q", f.Field)
		}
		switch f.Op {
		case OpEquals, OpOneOf:
		default:
			return apperr.Validation(op, "unsupported filter operator %q", f.Op)
		}
		if f.Op == OpEquals && len(f.Values) > 1 {
			return apperr.Validation(op, "filter %s has more than one value", f.Field)
		}
		for _, v := range f.Values {
			if !isScalar(v) {
				return apperr.Validation(op, "filter %s value %v is not a scalar", f.Field, v)
			}
		}
	}
	return nil
}

// Unsatisfiable reports whether any filter can never match.
func Unsatisfiable(filters []Filter) bool {
	for _, f := range filters {
		if len(f.Values) == 0 {
			return true
		}
	}
	return false
}

// Match evaluates filters against a JSON document.
func Match(doc map[string]any, filters []Filter) bool {
	for _, f := range filters {
		got, ok := Lookup(doc, f.Path())
		if !ok {
			return false
		}
		switch got.(type) {
		case map[string]any, []any, nil:
			return false
		}
		hit := false
		for _, v := range f.Values {
			want, err := normalize(v)
			if err != nil {
				continue
			}
			if reflect.DeepEqual(got, want) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// Lookup walks a dotted path through nested documents.
func Lookup(doc map[string]any, path []string) (any, bool) {
	var cur any = doc
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ScalarKind names the JSON type of a scalar filter value: "string",
// "bool" or "number".
func ScalarKind(v any) string {
	n, err := normalize(v)
	if err != nil {
		return ""
	}
	switch n.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case float64:
		return "number"
	}
	return ""
}

// Normalize converts a filter value to its JSON scalar form.
func Normalize(v any) (any, error) {
	return normalize(v)
}

func isScalar(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
