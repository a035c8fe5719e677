package popvars

import "github.com/neurodesk/popvars/pkg/table"

// Scope is the chain of loop bindings in force at a point of the render.
// It is persistent: With returns a new scope sharing its parent, so sibling
// iterations never observe each other's bindings. The nil *Scope is empty.
type Scope struct {
	name   string
	rec    table.Record
	parent *Scope
}

// With returns s extended by name bound to rec; s itself is unchanged.
func (s *Scope) With(name string, rec table.Record) *Scope {
	return &Scope{name: name, rec: rec, parent: s}
}

// Lookup returns the innermost record bound to name.
func (s *Scope) Lookup(name string) (table.Record, bool) {
	for c := s; c != nil; c = c.parent {
		if c.name == name {
			return c.rec, true
		}
	}
	return nil, false
}
