package types

import "fmt"

// VarDecl declares one group of type variables that must share a single
// runtime tag and belong to Class. A production like
//
//	lhs, rhs: Integer
//
// is one VarDecl with Vars = ["lhs", "rhs"] and Class = ClassInteger.
type VarDecl[T comparable] struct {
	Vars  []string
	Class Class[T]
}

// Production is one dispatch arm: a list of type-variable declarations
// plus the body to run once every declaration's class constraint is
// satisfied by the concrete tags supplied to Dispatch.
type Production[T comparable, R any] struct {
	Decls []VarDecl[T]
	Body  func(tags map[string]T) (R, error)
}

func varGroups[T comparable, R any](p Production[T, R]) [][]string {
	groups := make([][]string, len(p.Decls))
	for i, d := range p.Decls {
		groups[i] = d.Vars
	}
	return groups
}

func sameGroups(a, b [][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

// Dispatch is a typed-dispatch table for one operator: it enumerates the
// cross product of encodings (or other tag domains, e.g. aggregators)
// declared by its productions, and resolves a production whose class
// constraints match the concrete tags observed at plan-compilation time.
//
// Dispatch replaces source-level macro expansion over type classes; the
// contract it preserves is: identical-tag enforcement within a variable
// group, cross-product coverage across productions, and the two error
// messages documented on Resolve.
type Dispatch[T comparable, R any] struct {
	op          string
	productions []Production[T, R]
	groups      [][]string
}

// NewDispatch builds a Dispatch for operator op. It is a build-time
// error (returned here rather than panicking, so callers can surface it
// however they register operators) if productions do not all declare the
// same sequence of variable groups (same count and same names in the
// same order).
func NewDispatch[T comparable, R any](op string, productions []Production[T, R]) (*Dispatch[T, R], error) {
	if len(productions) == 0 {
		return nil, fmt.Errorf("typed dispatch %q: no productions declared", op)
	}
	groups := varGroups(productions[0])
	for i, p := range productions[1:] {
		g := varGroups(p)
		if !sameGroups(groups, g) {
			return nil, fmt.Errorf(
				"typed dispatch %q: production %d declares a different variable-group sequence than production 0",
				op, i+1)
		}
	}
	return &Dispatch[T, R]{op: op, productions: productions, groups: groups}, nil
}

// Resolve dispatches on the concrete tags observed for each declared
// variable name and runs the matching production's body.
//
// Errors:
//   - if two variables in the same declaration group carry different
//     tags: "Expected identical types for `x` and `y`: <tag> != <tag>".
//   - if no production's class constraints are satisfied by the
//     (identical, per-group) tags: "<op> not supported for type <tag>".
func (d *Dispatch[T, R]) Resolve(tags map[string]T) (R, error) {
	var zero R
	groupTag := make([]T, len(d.groups))
	for gi, group := range d.groups {
		if len(group) == 0 {
			continue
		}
		first := group[0]
		firstTag, ok := tags[first]
		if !ok {
			return zero, fmt.Errorf("typed dispatch %q: missing tag for variable `%s`", d.op, first)
		}
		for _, v := range group[1:] {
			t, ok := tags[v]
			if !ok {
				return zero, fmt.Errorf("typed dispatch %q: missing tag for variable `%s`", d.op, v)
			}
			if t != firstTag {
				return zero, fmt.Errorf(
					"Expected identical types for `%s` and `%s`: %v != %v", first, v, firstTag, t)
			}
		}
		groupTag[gi] = firstTag
	}

	for _, p := range d.productions {
		matched := true
		for gi, decl := range p.Decls {
			if len(decl.Vars) == 0 {
				continue
			}
			if !decl.Class.Has(groupTag[gi]) {
				matched = false
				break
			}
		}
		if matched {
			return p.Body(tags)
		}
	}

	var any T
	if len(groupTag) > 0 {
		any = groupTag[0]
	}
	return zero, fmt.Errorf("%s not supported for type %v", d.op, any)
}
