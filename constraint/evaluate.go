package constraint

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/cast"
)

// Evaluate reports whether e holds for ctx. A field missing from ctx passes.
// The only error is ErrInvalidConstraint, for an unknown operator or a regex
// pattern that does not compile.
func Evaluate(e Expr, ctx map[string]any) (bool, error) {
	actual, ok := ctx[e.Field]
	if !ok {
		return true, nil
	}

	switch e.Operator {
	case OpEquals:
		return equal(actual, e.Value), nil
	case OpNotEquals:
		return !equal(actual, e.Value), nil
	case OpContains:
		return contains(actual, e.Value), nil
	case OpGreaterThan:
		return compare(actual, e.Value) > 0, nil
	case OpLessThan:
		return compare(actual, e.Value) < 0, nil
	case OpIn:
		return member(actual, e.Value), nil
	case OpNotIn:
		return !member(actual, e.Value), nil
	case OpRegex:
		re, err := compile(e.Value)
		if err != nil {
			return false, err
		}
		return re.MatchString(text(actual)), nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidConstraint, e.Operator)
	}
}

// All reports whether every expression holds. It stops at the first false
// result or the first error. An empty list holds.
func All(exprs []Expr, ctx map[string]any) (bool, error) {
	for _, e := range exprs {
		ok, err := Evaluate(e, ctx)
		if err != nil {
			return false, fmt.Errorf("evaluate %s: %w", e, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// text renders v in the canonical form used by equality and substring tests.
// Integral floats render without a fractional part, so 42, 42.0 and "42"
// share one form.
func text(v any) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

func equal(a, b any) bool {
	return text(a) == text(b)
}

// number coerces numeric values and numeric strings. Booleans and nil are
// not numbers here even though cast would accept them.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case nil, bool:
		return 0, false
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return 0, false
		}
		f, err := cast.ToFloat64E(x)
		return f, err == nil
	default:
		f, err := cast.ToFloat64E(x)
		return f, err == nil
	}
}

func compare(a, b any) int {
	fa, okA := number(a)
	fb, okB := number(b)
	if okA && okB {
		switch {
		case fa > fb:
			return 1
		case fa < fb:
			return -1
		default:
			return 0
		}
	}
	return strings.Compare(text(a), text(b))
}

// list coerces the operand of in/not_in. Strings split on commas.
func list(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		parts := strings.Split(x, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	}
	if s, ok := items(v); ok {
		return s
	}
	return []any{v}
}

func member(actual, expected any) bool {
	for _, candidate := range list(expected) {
		if equal(actual, candidate) {
			return true
		}
	}
	return false
}

// contains is a substring test, or a membership test when the context value
// is itself a list.
func contains(actual, expected any) bool {
	if s, ok := items(actual); ok {
		for _, item := range s {
			if equal(item, expected) {
				return true
			}
		}
		return false
	}
	return strings.Contains(text(actual), text(expected))
}

// items flattens any slice or array except []byte into []any.
func items(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

var patterns sync.Map // string -> *regexp.Regexp

func compile(v any) (*regexp.Regexp, error) {
	pattern := text(v)
	if cached, ok := patterns.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil //nolint:errcheck // only *regexp.Regexp is stored
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: regex %q: %v", ErrInvalidConstraint, pattern, err)
	}
	patterns.Store(pattern, re)
	return re, nil
}
