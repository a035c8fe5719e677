package table

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
)

// ErrNoID is returned when a table is indexed but one of its records has no $id.
var ErrNoID = errors.New("table has no $id field")

// Table is a named, ordered sequence of records.
//
// A Table must not be modified once it has been indexed; the index is built
// lazily and shared by all readers.
type Table struct {
	Name    string
	Records []Record
	// Columns holds the header order when the table was read from a file.
	Columns []string

	once   sync.Once
	byID   map[string]int
	idxErr error
}

// New returns a table holding records in the given order.
func New(name string, records ...Record) *Table {
	return &Table{Name: name, Records: records}
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.Records) }

// All iterates records in table order.
func (t *Table) All() iter.Seq2[int, Record] {
	return func(yield func(int, Record) bool) {
		for i, r := range t.Records {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Append adds a record at the end of the table.
func (t *Table) Append(r Record) {
	t.Records = append(t.Records, r)
}

// Index returns the first record whose $id equals value.
//
// An empty table never matches and is never checked. A non-empty table in
// which any record lacks $id yields ErrNoID.
func (t *Table) Index(value string) (Record, bool, error) {
	i, ok, err := t.Find(value)
	if err != nil || !ok {
		return nil, false, err
	}
	return t.Records[i], true, nil
}

// Find is like Index but returns the record's position.
func (t *Table) Find(value string) (int, bool, error) {
	if len(t.Records) == 0 {
		return -1, false, nil
	}
	t.once.Do(t.buildIndex)
	if t.idxErr != nil {
		return -1, false, t.idxErr
	}
	i, ok := t.byID[value]
	if !ok {
		return -1, false, nil
	}
	return i, true, nil
}

// CheckIndexable reports whether the table can be indexed by $id.
func (t *Table) CheckIndexable() error {
	if len(t.Records) == 0 {
		return nil
	}
	t.once.Do(t.buildIndex)
	return t.idxErr
}

func (t *Table) buildIndex() {
	t.byID = make(map[string]int, len(t.Records))
	for i, r := range t.Records {
		id, ok := r.ID()
		if !ok {
			t.idxErr = fmt.Errorf("invalid table %q (record %d): %w", t.Name, i+1, ErrNoID)
			return
		}
		if _, dup := t.byID[id]; !dup {
			t.byID[id] = i
		}
	}
}

// Fields returns the table's field names: the header order when known,
// otherwise the sorted union over all records.
func (t *Table) Fields() []string {
	if len(t.Columns) > 0 {
		return slices.Clone(t.Columns)
	}
	seen := map[string]bool{}
	for _, r := range t.Records {
		for k := range r {
			seen[k] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
