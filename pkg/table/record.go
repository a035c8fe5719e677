package table

import "strings"

// Special field names.
const (
	// FieldID identifies a record within its table and is the join key for lookups.
	FieldID = "$id"
	// FieldOutFile names the output file a record renders to.
	FieldOutFile = "$outfile"
)

// Record is one row of a table: field name to text value.
type Record map[string]string

// ID returns the record's $id.
func (r Record) ID() (string, bool) {
	v, ok := r[FieldID]
	return v, ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IsSpecial reports whether name is reserved by the engine.
func IsSpecial(name string) bool {
	return strings.HasPrefix(name, "$")
}
