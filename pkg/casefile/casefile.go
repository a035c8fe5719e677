// Package casefile reads template test cases from YAML and runs them.
//
// A case file holds a list of cases. Each case gives a template, the driving
// table and any lookup tables as CSV text, and either the expected output
// (every row's output concatenated) or a substring of the expected error.
package casefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/neurodesk/popvars/pkg/popvars"
	"github.com/neurodesk/popvars/pkg/table"
	v "github.com/neurodesk/popvars/pkg/validator"
	"go.yaml.in/yaml/v4"
)

type Case struct {
	Name     string            `yaml:"name"`
	Template string            `yaml:"template"`
	Vars     string            `yaml:"vars"`
	Tables   map[string]string `yaml:"tables,omitempty"`
	Output   *string           `yaml:"output,omitempty"`
	Error    string            `yaml:"error,omitempty"`
}

func (c Case) Validate() error {
	if err := v.NotEmpty(c.Name, "case name"); err != nil {
		return err
	}
	switch {
	case c.Output == nil && c.Error == "":
		return fmt.Errorf("case %q: one of output or error is required", c.Name)
	case c.Output != nil && c.Error != "":
		return fmt.Errorf("case %q: output and error are mutually exclusive", c.Name)
	}
	return nil
}

// Definition builds the tables of the case.
func (c Case) Definition() (*table.Definition, error) {
	return table.FromCSVStrings(c.Vars, c.Tables)
}

// Result is the outcome of running one case.
type Result struct {
	Name string
	// Got is the concatenated output, empty when rendering failed.
	Got string
	// Err is the render error, if any.
	Err error
	// Failure explains why the case failed; empty when it passed.
	Failure string
}

func (r Result) Passed() bool { return r.Failure == "" }

// Run compiles and renders the case and compares the outcome.
func (c Case) Run() Result {
	res := Result{Name: c.Name}
	res.Got, res.Err = c.render()

	switch {
	case c.Error != "" && res.Err == nil:
		res.Failure = fmt.Sprintf("expected error containing %q, got output %q", c.Error, res.Got)
	case c.Error != "" && !strings.Contains(res.Err.Error(), c.Error):
		res.Failure = fmt.Sprintf("expected error containing %q, got %q", c.Error, res.Err)
	case c.Error == "" && res.Err != nil:
		res.Failure = fmt.Sprintf("unexpected error: %v", res.Err)
	case c.Output != nil && *c.Output != res.Got:
		res.Failure = "output mismatch (-want +got):\n" + cmp.Diff(*c.Output, res.Got)
	}
	return res
}

func (c Case) render() (string, error) {
	tpl, err := popvars.Compile(c.Template)
	if err != nil {
		return "", err
	}
	def, err := c.Definition()
	if err != nil {
		return "", fmt.Errorf("loading tables: %w", err)
	}
	out, err := tpl.RenderAll(def)
	if err != nil {
		return "", err
	}
	return strings.Join(out, ""), nil
}

// File is a parsed case file.
type File struct {
	Path  string
	Cases []Case
}

// Decode reads a list of cases and validates them.
func Decode(r io.Reader) ([]Case, error) {
	var cases []Case
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cases); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding cases: %w", err)
	}
	names := make([]string, len(cases))
	for i, c := range cases {
		names[i] = c.Name
	}
	if err := v.All(v.EachCollect(cases, "cases"), v.NoDuplicates(names, "case names")); err != nil {
		return nil, err
	}
	return cases, nil
}

// Load reads one case file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	cases, err := Decode(bytes.NewReader(data))
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return File{Path: path, Cases: cases}, nil
}

// LoadAll loads files and directories; directories contribute their *.yaml
// and *.yml files in name order.
func LoadAll(paths ...string) ([]File, error) {
	var files []File
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		names := []string{p}
		if st.IsDir() {
			names = nil
			for _, pattern := range []string{"*.yaml", "*.yml"} {
				m, err := filepath.Glob(filepath.Join(p, pattern))
				if err != nil {
					return nil, err
				}
				names = append(names, m...)
			}
			slices.Sort(names)
		}
		for _, name := range names {
			f, err := Load(name)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}
	return files, nil
}

// Filter keeps the cases whose name matches one of names, ignoring case.
// No names keeps everything.
func Filter(files []File, names ...string) []File {
	if len(names) == 0 {
		return files
	}
	var out []File
	for _, f := range files {
		var kept []Case
		for _, c := range f.Cases {
			if slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, c.Name) }) {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			out = append(out, File{Path: f.Path, Cases: kept})
		}
	}
	return out
}
