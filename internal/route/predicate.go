package route

import (
	"fmt"
	"regexp"
)

// Predicate is a sealed interface over the predicate tree variants.
// Only the types in this file implement it, so evaluation can switch
// exhaustively without a default fallthrough for unknown shapes.
type Predicate interface {
	predicate()
	// Validate checks structural invariants recursively.
	Validate() error
}

// CompareOp enumerates the comparison leaf operators.
type CompareOp string

const (
	OpEq  CompareOp = "eq"
	OpNeq CompareOp = "neq"
	OpGt  CompareOp = "gt"
	OpGte CompareOp = "gte"
	OpLt  CompareOp = "lt"
	OpLte CompareOp = "lte"
)

// validCompareOps gates codec decoding.
var validCompareOps = map[CompareOp]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
}

// Compare tests the value at Path against a literal.
//
// A missing path fails every comparison except neq, which treats absence
// as "not equal".
type Compare struct {
	Op    CompareOp
	Path  string
	Value any
}

func (Compare) predicate() {}

func (p Compare) Validate() error {
	if !validCompareOps[p.Op] {
		return fmt.Errorf("unknown comparison op %q", p.Op)
	}
	if p.Path == "" {
		return fmt.Errorf("%s: empty path", p.Op)
	}
	return nil
}

// In tests whether the value at Path equals any listed literal.
// A missing path never matches.
type In struct {
	Path   string
	Values []any
}

func (In) predicate() {}

func (p In) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("in: empty path")
	}
	if len(p.Values) == 0 {
		return fmt.Errorf("in: empty value list")
	}
	return nil
}

// Regex tests the string value at Path against an anchored-as-written
// regular expression. A missing or non-string path never matches.
type Regex struct {
	Path    string
	Pattern string
}

func (Regex) predicate() {}

func (p Regex) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("regex: empty path")
	}
	if _, err := regexp.Compile(p.Pattern); err != nil {
		return fmt.Errorf("regex: %w", err)
	}
	return nil
}

// Exists tests path presence. Expect=false matches missing paths, which is
// the one way a predicate can succeed against an absent value.
type Exists struct {
	Path   string
	Expect bool
}

func (Exists) predicate() {}

func (p Exists) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("exists: empty path")
	}
	return nil
}

// And requires every child to hold. Invariant: at least one child.
type And struct {
	Predicates []Predicate
}

func (And) predicate() {}

func (p And) Validate() error {
	if len(p.Predicates) == 0 {
		return fmt.Errorf("and: requires at least one child")
	}
	for i, child := range p.Predicates {
		if err := child.Validate(); err != nil {
			return fmt.Errorf("and[%d]: %w", i, err)
		}
	}
	return nil
}

// Or requires any child to hold. Invariant: at least one child.
type Or struct {
	Predicates []Predicate
}

func (Or) predicate() {}

func (p Or) Validate() error {
	if len(p.Predicates) == 0 {
		return fmt.Errorf("or: requires at least one child")
	}
	for i, child := range p.Predicates {
		if err := child.Validate(); err != nil {
			return fmt.Errorf("or[%d]: %w", i, err)
		}
	}
	return nil
}

// Not negates its single child. Invariant: exactly one child.
type Not struct {
	Predicate Predicate
}

func (Not) predicate() {}

func (p Not) Validate() error {
	if p.Predicate == nil {
		return fmt.Errorf("not: requires exactly one child")
	}
	return p.Predicate.Validate()
}
