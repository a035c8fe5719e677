package project

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/neurodesk/popvars/pkg/popvars"
	"github.com/neurodesk/popvars/pkg/table"
	v "github.com/neurodesk/popvars/pkg/validator"
)

// What to do when an output file already exists.
const (
	ExistsOverwrite = "overwrite"
	ExistsSkip      = "skip"
	ExistsError     = "error"
)

// Output says where rendered text goes. With no Dir, every output is written
// to one stream joined by Separator.
type Output struct {
	Dir       string                 `yaml:"dir,omitempty"`
	Name      popvars.TemplateString `yaml:"name,omitempty"`
	Separator *string                `yaml:"separator,omitempty"`
	Exists    string                 `yaml:"exists,omitempty"`
}

func (o Output) Validate() error {
	var name error
	if o.Name != "" {
		name = o.Name.Validate()
	}
	return v.All(
		name,
		v.MatchesAllowed(o.Exists, []string{"", ExistsOverwrite, ExistsSkip, ExistsError}, "output.exists"),
	)
}

func (o Output) separator() string {
	if o.Separator == nil {
		return "\n"
	}
	return *o.Separator
}

// FileName picks the file an output row is written to: the record's $outfile,
// else Name rendered against the record, else "<row>.txt". Row is 1-based.
func (o Output) FileName(row int, rec table.Record, def *table.Definition) (string, error) {
	if name := rec[table.FieldOutFile]; name != "" {
		return name, nil
	}
	if o.Name != "" {
		name, err := o.Name.Render(rec, def)
		if err != nil {
			return "", fmt.Errorf("output name: %w", err)
		}
		if name = strings.TrimSpace(name); name != "" {
			return name, nil
		}
	}
	return strconv.Itoa(row) + ".txt", nil
}

// Path joins name onto dir and rejects names that leave dir.
func Path(dir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("output file %q must be relative", name)
	}
	full := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, full)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output file %q escapes the output directory", name)
	}
	return full, nil
}

// Write sends rendered outputs, one per driving record, to w or to files
// under dir. It returns the files written.
func (o Output) Write(w io.Writer, dir string, outputs []string, def *table.Definition) ([]string, error) {
	if dir == "" {
		sep := o.separator()
		for i, s := range outputs {
			if i > 0 {
				if _, err := io.WriteString(w, sep); err != nil {
					return nil, err
				}
			}
			if _, err := io.WriteString(w, s); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	var written []string
	seen := make(map[string]int, len(outputs))
	for i, s := range outputs {
		row := i + 1
		name, err := o.FileName(row, def.Vars.Records[i], def)
		if err != nil {
			return written, &popvars.RowError{Row: row, Err: err}
		}
		file, err := Path(dir, name)
		if err != nil {
			return written, &popvars.RowError{Row: row, Err: err}
		}
		if prev, ok := seen[file]; ok {
			return written, &popvars.RowError{Row: row, Err: fmt.Errorf("output file %q already written by row %d", name, prev)}
		}
		seen[file] = row

		if o.Exists == ExistsSkip || o.Exists == ExistsError {
			_, err := os.Stat(file)
			switch {
			case err == nil && o.Exists == ExistsSkip:
				continue
			case err == nil:
				return written, &popvars.RowError{Row: row, Err: fmt.Errorf("output file %q already exists", name)}
			case !errors.Is(err, fs.ErrNotExist):
				return written, err
			}
		}
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return written, err
		}
		if err := os.WriteFile(file, []byte(s), 0o644); err != nil {
			return written, err
		}
		written = append(written, file)
	}
	return written, nil
}
