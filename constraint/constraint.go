// Package constraint implements the predicate language attached to role
// overrides: a field looked up in a caller-supplied context, an operator, and
// a comparison operand.
//
// A constraint whose field is absent from the context passes. This fail-open
// rule is deliberate: overrides scope access when the caller knows the fact
// in question, and never turn an unrelated request into a denial.
package constraint

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConstraint is returned for malformed constraints: empty field,
	// unknown operator or a regex pattern that does not compile.
	ErrInvalidConstraint = errors.New("constraint: invalid constraint")

	// ErrUnknownOperator is returned by ParseOperator for names outside the
	// operator vocabulary.
	ErrUnknownOperator = errors.New("constraint: unknown operator")
)

// Operator is a comparison operator.
type Operator string

const (
	// OpEquals compares the text forms of both operands.
	OpEquals Operator = "equals"

	// OpNotEquals is the negation of OpEquals.
	OpNotEquals Operator = "not_equals"

	// OpContains is a substring test on the text forms.
	OpContains Operator = "contains"

	// OpGreaterThan orders numerically when both operands are numeric,
	// lexicographically otherwise.
	OpGreaterThan Operator = "greater_than"

	// OpLessThan orders numerically when both operands are numeric,
	// lexicographically otherwise.
	OpLessThan Operator = "less_than"

	// OpIn tests membership in the operand coerced to a list.
	OpIn Operator = "in"

	// OpNotIn is the negation of OpIn.
	OpNotIn Operator = "not_in"

	// OpRegex matches the context value against the operand as an RE2 pattern.
	OpRegex Operator = "regex"
)

// Operators lists every supported operator.
func Operators() []Operator {
	return []Operator{OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpIn, OpNotIn, OpRegex}
}

// ParseOperator converts a name into an Operator.
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.TrimSpace(s))
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperator, s)
	}
	return op, nil
}

// Valid reports whether op is part of the operator vocabulary.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpIn, OpNotIn, OpRegex:
		return true
	default:
		return false
	}
}

// Expr is a single predicate over the request context.
type Expr struct {
	Field    string   `json:"field" yaml:"field" bson:"field"`
	Operator Operator `json:"operator" yaml:"operator" bson:"operator"`
	Value    any      `json:"value" yaml:"value" bson:"value"`
}

// String renders the expression for logs and error messages.
func (e Expr) String() string {
	return fmt.Sprintf("%s %s %v", e.Field, e.Operator, e.Value)
}

// Validate checks that e can be evaluated. Regex patterns are compiled here
// so a bad pattern is rejected when the constraint is stored.
func Validate(e Expr) error {
	if strings.TrimSpace(e.Field) == "" {
		return fmt.Errorf("%w: empty field", ErrInvalidConstraint)
	}
	if !e.Operator.Valid() {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidConstraint, e.Operator)
	}
	if e.Operator == OpRegex {
		if _, err := compile(e.Value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAll validates every expression, reporting the first failure with
// its position.
func ValidateAll(exprs []Expr) error {
	for i, e := range exprs {
		if err := Validate(e); err != nil {
			return fmt.Errorf("constraint %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns a copy of exprs that shares no slice backing with the input.
func Clone(exprs []Expr) []Expr {
	if exprs == nil {
		return nil
	}
	out := make([]Expr, len(exprs))
	copy(out, exprs)
	return out
}
