package node

import (
	"testing"

	"github.com/defektu/node-oscquery/osctype"
)

func ptr[T any](v T) *T { return &v }

func TestAddMethodAndSerialize(t *testing.T) {
	// spec §8 scenario 1 (minus the discovery round-trip, covered elsewhere)
	tr := NewTree()
	access := AccessReadOnly
	changed := tr.AddMethod("/foo", NodeOpts{
		Access: &access,
		Arguments: []*ArgumentDescriptor{
			{Type: osctype.OSCType{Simple: osctype.Float}, Range: &Range{Min: ptr(0.0), Max: ptr(100.0)}},
		},
	})
	if changed != "/foo" {
		t.Fatalf("changed = %q, want /foo", changed)
	}
	if err := tr.SetValue("/foo", 0, 0.5); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	s, ok := tr.Serialize("/foo")
	if !ok {
		t.Fatal("Serialize(/foo) not found")
	}
	if s.Type != "f" {
		t.Errorf("TYPE = %q, want f", s.Type)
	}
	if s.Access == nil || *s.Access != int(AccessReadOnly) {
		t.Errorf("ACCESS = %v, want 1", s.Access)
	}
	if len(s.Range) != 1 || s.Range[0] == nil || *s.Range[0].Min != 0 || *s.Range[0].Max != 100 {
		t.Errorf("RANGE = %+v, want [{MIN:0 MAX:100}]", s.Range)
	}
	if len(s.Value) != 1 || s.Value[0] != 0.5 {
		t.Errorf("VALUE = %+v, want [0.5]", s.Value)
	}
}

func TestNestedArrayTypeSerialization(t *testing.T) {
	// spec §8 scenario 2
	tr := NewTree()
	tr.AddMethod("/t", NodeOpts{
		Arguments: []*ArgumentDescriptor{
			{Type: osctype.OSCType{Simple: osctype.String}},
			{
				Type: osctype.OSCType{IsArray: true, Array: []osctype.OSCType{
					{Simple: osctype.Int}, {Simple: osctype.False},
				}},
				Range: &Range{Nested: []*Range{
					{Min: ptr(-100.0)},
					nil,
				}},
			},
		},
	})

	s, ok := tr.Serialize("/t")
	if !ok {
		t.Fatal("Serialize(/t) not found")
	}
	if s.Type != "s[iF]" {
		t.Fatalf("TYPE = %q, want s[iF]", s.Type)
	}
	if len(s.Range) != 2 || s.Range[0] != nil {
		t.Fatalf("RANGE[0] should be nil, got %+v", s.Range)
	}
	nested := s.Range[1]
	if nested == nil || nested.Nested == nil || len(nested.Nested) != 2 {
		t.Fatalf("RANGE[1] should be a nested pair, got %+v", nested)
	}
	if nested.Nested[0] == nil || *nested.Nested[0].Min != -100 {
		t.Fatalf("RANGE[1][0].MIN = %v, want -100", nested.Nested[0])
	}
	if nested.Nested[1] != nil {
		t.Fatalf("RANGE[1][1] should be nil, got %+v", nested.Nested[1])
	}
}

func TestRemoveMethodCascade(t *testing.T) {
	// spec §8 scenario 5
	tr := NewTree()
	tr.AddMethod("/g/h", NodeOpts{
		Arguments: []*ArgumentDescriptor{{Type: osctype.OSCType{Simple: osctype.Int}}},
	})

	changed := tr.RemoveMethod("/g/h")
	want := []string{"/g/h", "/g"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}

	if _, ok := tr.Resolve("/g/h"); ok {
		t.Error("/g/h should be gone")
	}
	if _, ok := tr.Resolve("/g"); ok {
		t.Error("/g should be gone")
	}
}

func TestRemoveMethodStopsAtNonEmptyAncestor(t *testing.T) {
	tr := NewTree()
	tr.AddMethod("/a/b/c", NodeOpts{
		Arguments: []*ArgumentDescriptor{{Type: osctype.OSCType{Simple: osctype.Int}}},
	})
	tr.AddMethod("/a/x", NodeOpts{
		Arguments: []*ArgumentDescriptor{{Type: osctype.OSCType{Simple: osctype.Int}}},
	})

	changed := tr.RemoveMethod("/a/b/c")
	want := []string{"/a/b/c", "/a/b"}
	if len(changed) != len(want) || changed[0] != want[0] || changed[1] != want[1] {
		t.Fatalf("changed = %v, want %v", changed, want)
	}

	// /a survives because /a/x still hangs off it.
	if _, ok := tr.Resolve("/a"); !ok {
		t.Error("/a should survive (still has child /a/x)")
	}
	if _, ok := tr.Resolve("/a/x"); !ok {
		t.Error("/a/x should be untouched")
	}
}

func TestSetValueInvalidIndex(t *testing.T) {
	tr := NewTree()
	tr.AddMethod("/p", NodeOpts{
		Arguments: []*ArgumentDescriptor{{Type: osctype.OSCType{Simple: osctype.Int}}},
	})
	if err := tr.SetValue("/p", 5, 1); err != ErrInvalidIndex {
		t.Fatalf("err = %v, want ErrInvalidIndex", err)
	}
}

func TestMethodGeneratorPreorder(t *testing.T) {
	tr := NewTree()
	tr.AddMethod("/a", NodeOpts{Arguments: []*ArgumentDescriptor{{Type: osctype.OSCType{Simple: osctype.Int}}}})
	tr.AddMethod("/a/b", NodeOpts{Arguments: []*ArgumentDescriptor{{Type: osctype.OSCType{Simple: osctype.Int}}}})
	tr.AddMethod("/z", NodeOpts{Arguments: []*ArgumentDescriptor{{Type: osctype.OSCType{Simple: osctype.Int}}}})

	var paths []string
	for n := range tr.MethodGenerator() {
		paths = append(paths, n.FullPath())
	}
	want := []string{"/a", "/a/b", "/z"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths = %v, want %v", paths, want)
		}
	}
}

func TestContainerIsNotAMethod(t *testing.T) {
	tr := NewTree()
	tr.AddMethod("/only/container", NodeOpts{})
	s, ok := tr.Serialize("/only/container")
	if !ok {
		t.Fatal("not found")
	}
	if s.Type != "" {
		t.Errorf("container should have no TYPE, got %q", s.Type)
	}

	var count int
	for range tr.MethodGenerator() {
		count++
	}
	if count != 0 {
		t.Errorf("expected no methods, got %d", count)
	}
}
