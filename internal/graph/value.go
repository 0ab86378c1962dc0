package graph

import (
	"fmt"
	"sort"

	"github.com/imamik/stackforge/internal/util/errdefs"
)

// Ref points at a computed attribute of another node.
type Ref struct {
	Node Address
	Attr string
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool {
	return r.Node.IsZero() && r.Attr == ""
}

func (r Ref) String() string {
	return r.Node.String() + "." + r.Attr
}

// MarshalText renders the ref as an interpolation placeholder so declared
// attributes can be hashed and stored before the producer exists.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte("${" + r.String() + "}"), nil
}

// Attrs holds declared attributes. Values are strings, numbers, bools,
// []any, map[string]any, or Ref.
type Attrs map[string]any

// List builds a list attribute.
func List(values ...any) []any {
	return values
}

// RefList converts refs to a list attribute.
func RefList(refs []Ref) []any {
	out := make([]any, len(refs))
	for i, r := range refs {
		out[i] = r
	}
	return out
}

// Refs returns every ref contained in v, in deterministic order.
func Refs(v any) []Ref {
	var out []Ref
	collectRefs(v, &out)
	return out
}

func collectRefs(v any, out *[]Ref) {
	switch t := v.(type) {
	case Ref:
		*out = append(*out, t)
	case Attrs:
		collectRefs(map[string]any(t), out)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectRefs(t[k], out)
		}
	case []any:
		for _, e := range t {
			collectRefs(e, out)
		}
	}
}

// Lookup returns the computed value of a ref, or false when the producer has
// not produced it.
type Lookup func(Ref) (any, bool)

// Resolve returns a deep copy of attrs with every ref replaced by its value.
// An unresolvable ref is a DependencyError naming node.
func Resolve(node Address, attrs Attrs, lookup Lookup) (Attrs, error) {
	out, err := resolveValue(node, map[string]any(attrs), lookup)
	if err != nil {
		return nil, err
	}
	return Attrs(out.(map[string]any)), nil
}

func resolveValue(node Address, v any, lookup Lookup) (any, error) {
	switch t := v.(type) {
	case Ref:
		val, ok := lookup(t)
		if !ok {
			return nil, &errdefs.DependencyError{
				Node:    node.String(),
				Depends: t.String(),
				Message: "producer has not been applied",
			}
		}
		return val, nil
	case Attrs:
		return resolveValue(node, map[string]any(t), lookup)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			r, err := resolveValue(node, e, lookup)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			r, err := resolveValue(node, e, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case []string:
		return append([]string(nil), t...), nil
	default:
		return v, nil
	}
}

// String returns a string attribute, or "" when absent or of another type.
func (a Attrs) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int returns an integer attribute. JSON-decoded float64 values are accepted.
func (a Attrs) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Bool returns a boolean attribute.
func (a Attrs) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Strings returns a list attribute as strings.
func (a Attrs) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return nil
	}
}
