package popvars

import (
	"testing"

	"github.com/neurodesk/popvars/pkg/table"
)

func TestScopeWithDoesNotMutateParent(t *testing.T) {
	var root *Scope
	outer := root.With("x", table.Record{"f": "outer"})
	a := outer.With("y", table.Record{"f": "a"})
	b := outer.With("y", table.Record{"f": "b"})

	if _, ok := outer.Lookup("y"); ok {
		t.Fatalf("child binding leaked into parent")
	}
	ra, _ := a.Lookup("y")
	rb, _ := b.Lookup("y")
	if ra["f"] != "a" || rb["f"] != "b" {
		t.Fatalf("siblings share bindings: a=%v b=%v", ra, rb)
	}
	if rx, ok := b.Lookup("x"); !ok || rx["f"] != "outer" {
		t.Fatalf("ancestor binding not visible: %v", rx)
	}
	if _, ok := root.Lookup("x"); ok {
		t.Fatalf("empty scope should bind nothing")
	}
}

func TestScopeShadowing(t *testing.T) {
	s := (*Scope)(nil).With("x", table.Record{"v": "1"}).With("y", nil).With("x", table.Record{"v": "2"})
	r, _ := s.Lookup("x")
	if r["v"] != "2" {
		t.Fatalf("got %v, want innermost binding", r)
	}
	if _, ok := s.Lookup("y"); !ok {
		t.Fatalf("binding behind a shadowed name should stay visible")
	}
}
