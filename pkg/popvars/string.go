package popvars

import (
	"fmt"

	"github.com/neurodesk/popvars/pkg/table"
)

// TemplateString is a template held in configuration, such as an output
// file name pattern.
type TemplateString string

func (t TemplateString) Validate() error {
	if _, err := Parse(string(t)); err != nil {
		return fmt.Errorf("invalid template %q: %w", string(t), err)
	}
	return nil
}

// Render compiles the template and renders it for one record.
func (t TemplateString) Render(rec table.Record, def *table.Definition) (string, error) {
	tpl, err := Compile(string(t))
	if err != nil {
		return "", fmt.Errorf("parsing template %q: %w", string(t), err)
	}
	return tpl.Render(rec, def)
}
