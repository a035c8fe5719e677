package table

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/neurodesk/popvars/pkg/validator"
)

// VarsName is the conventional name of the driving table.
const VarsName = "vars"

var ErrDuplicateTable = errors.New("duplicate table name")

// Definition is the driving table plus every other table available to lookups.
// It is read-only once rendering starts.
type Definition struct {
	Vars   *Table
	Tables map[string]*Table
}

// NewDefinition builds a definition from a driving table and lookup tables.
func NewDefinition(vars *Table, tables ...*Table) (*Definition, error) {
	if vars == nil {
		vars = New(VarsName)
	}
	d := &Definition{Vars: vars, Tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if err := d.Add(t); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Add registers a lookup table.
func (d *Definition) Add(t *Table) error {
	if t.Name == "" {
		return fmt.Errorf("table has no name")
	}
	if _, ok := d.Tables[t.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTable, t.Name)
	}
	if d.Tables == nil {
		d.Tables = map[string]*Table{}
	}
	d.Tables[t.Name] = t
	return nil
}

// Table returns the lookup table called name.
func (d *Definition) Table(name string) (*Table, bool) {
	t, ok := d.Tables[name]
	return t, ok
}

// Names returns the lookup table names in sorted order.
func (d *Definition) Names() []string {
	return slices.Sorted(maps.Keys(d.Tables))
}

// Lint reports every lookup table that cannot be indexed and every
// duplicated $id. Duplicates are legal (the first match wins) but usually a
// data mistake.
func (d *Definition) Lint() error {
	var errs []error
	for _, name := range d.Names() {
		t := d.Tables[name]
		if err := t.CheckIndexable(); err != nil {
			errs = append(errs, err)
			continue
		}
		ids := make([]string, 0, t.Len())
		for _, r := range t.Records {
			id, _ := r.ID()
			ids = append(ids, id)
		}
		errs = append(errs, validator.NoDuplicates(ids, fmt.Sprintf("table %q $id", name)))
	}
	return validator.Collect(errs...)
}
