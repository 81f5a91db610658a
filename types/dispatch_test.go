package types

import "testing"

func TestDispatchSameTagEnforced(t *testing.T) {
	d, err := NewDispatch("add", []Production[EncodingType, string]{
		{
			Decls: []VarDecl[EncodingType]{{Vars: []string{"lhs", "rhs"}, Class: ClassInteger}},
			Body:  func(map[string]EncodingType) (string, error) { return "int", nil },
		},
		{
			Decls: []VarDecl[EncodingType]{{Vars: []string{"lhs", "rhs"}, Class: ClassFloat}},
			Body:  func(map[string]EncodingType) (string, error) { return "float", nil },
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.Resolve(map[string]EncodingType{"lhs": I64, "rhs": F64}); err == nil {
		t.Fatal("expected mismatch error")
	} else if got, want := err.Error(), "Expected identical types for `lhs` and `rhs`: I64 != F64"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDispatchCrossProductCoverage(t *testing.T) {
	d, err := NewDispatch("add", []Production[EncodingType, string]{
		{
			Decls: []VarDecl[EncodingType]{{Vars: []string{"lhs", "rhs"}, Class: ClassInteger}},
			Body:  func(map[string]EncodingType) (string, error) { return "int", nil },
		},
		{
			Decls: []VarDecl[EncodingType]{{Vars: []string{"lhs", "rhs"}, Class: ClassFloat}},
			Body:  func(map[string]EncodingType) (string, error) { return "float", nil },
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, enc := range []EncodingType{U8, U16, U32, U64, I64} {
		got, err := d.Resolve(map[string]EncodingType{"lhs": enc, "rhs": enc})
		if err != nil || got != "int" {
			t.Fatalf("%v: got %q, %v", enc, got, err)
		}
	}
	got, err := d.Resolve(map[string]EncodingType{"lhs": F64, "rhs": F64})
	if err != nil || got != "float" {
		t.Fatalf("got %q, %v", got, err)
	}

	if _, err := d.Resolve(map[string]EncodingType{"lhs": Str, "rhs": Str}); err == nil {
		t.Fatal("expected fallback error")
	} else if got, want := err.Error(), "add not supported for type Str"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDispatchRejectsInconsistentGroups(t *testing.T) {
	_, err := NewDispatch("f", []Production[EncodingType, string]{
		{
			Decls: []VarDecl[EncodingType]{{Vars: []string{"a"}, Class: ClassInteger}},
			Body:  func(map[string]EncodingType) (string, error) { return "a", nil },
		},
		{
			Decls: []VarDecl[EncodingType]{{Vars: []string{"a", "b"}, Class: ClassFloat}},
			Body:  func(map[string]EncodingType) (string, error) { return "b", nil },
		},
	})
	if err == nil {
		t.Fatal("expected build-time error for inconsistent variable groups")
	}
}
