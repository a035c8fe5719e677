package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurodesk/popvars/pkg/validator"
)

// ReadCSV reads a table whose first row names the fields.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return New(name), nil
	}
	if err != nil {
		return nil, fmt.Errorf("table %q: reading header: %w", name, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			return nil, fmt.Errorf("table %q: column %d has an empty name", name, i+1)
		}
	}
	if err := validator.NoDuplicates(header, fmt.Sprintf("table %q header", name)); err != nil {
		return nil, err
	}

	t := New(name)
	t.Columns = header
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", name, err)
		}
		rec := make(Record, len(header))
		for i, h := range header {
			rec[h] = row[i]
		}
		t.Append(rec)
	}
	return t, nil
}

// NameFromPath derives a table name from a file path: the base name up to
// its first dot, so "data/country.csv" and "country.v2.csv" both name "country".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// LoadCSVFile reads a CSV file. An empty name is derived from the path.
func LoadCSVFile(name, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if name == "" {
		name = NameFromPath(path)
	}
	return ReadCSV(name, f)
}

// FromCSVFiles loads the driving table and every lookup table from files.
func FromCSVFiles(varsPath string, tablePaths ...string) (*Definition, error) {
	vars, err := LoadCSVFile(VarsName, varsPath)
	if err != nil {
		return nil, fmt.Errorf("loading vars: %w", err)
	}
	var tables []*Table
	for _, p := range tablePaths {
		t, err := LoadCSVFile("", p)
		if err != nil {
			return nil, fmt.Errorf("loading table %s: %w", p, err)
		}
		tables = append(tables, t)
	}
	return NewDefinition(vars, tables...)
}

// FromCSVStrings builds a definition from in-memory CSV text.
func FromCSVStrings(vars string, tables map[string]string) (*Definition, error) {
	v, err := ReadCSV(VarsName, strings.NewReader(vars))
	if err != nil {
		return nil, err
	}
	d, err := NewDefinition(v)
	if err != nil {
		return nil, err
	}
	for name, src := range tables {
		t, err := ReadCSV(name, strings.NewReader(src))
		if err != nil {
			return nil, err
		}
		if err := d.Add(t); err != nil {
			return nil, err
		}
	}
	return d, nil
}
