package derive

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/neurodesk/popvars/pkg/table"
	"github.com/neurodesk/popvars/pkg/validator"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Rule computes one field of every record from a Starlark expression.
// Fields of the record are visible as globals when their names are valid
// identifiers, and always through the row dict and the field() builtin.
type Rule struct {
	Field string `yaml:"field"`
	Expr  string `yaml:"expr"`
}

func (r Rule) Validate() error {
	if err := validator.All(
		validator.NotEmpty(r.Field, "derive field"),
		validator.NotEmpty(r.Expr, "derive expr"),
	); err != nil {
		return err
	}
	if table.IsSpecial(r.Field) {
		return fmt.Errorf("derive field %q: special fields cannot be derived", r.Field)
	}
	if _, err := syntax.ParseExpr("<derive>", r.Expr, 0); err != nil {
		return fmt.Errorf("derive field %q: %w", r.Field, err)
	}
	return nil
}

// Evaluator evaluates derive expressions against records. It is not safe
// for concurrent use.
type Evaluator struct {
	thread   *starlark.Thread
	builtins starlark.StringDict
	logger   *slog.Logger
}

// NewEvaluator creates an evaluator. A nil logger uses slog.Default().
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Evaluator{
		thread: &starlark.Thread{Name: "popvars-derive"},
		logger: logger,
	}
	e.builtins = createBuiltins(logger)
	return e
}

// Eval evaluates expr with rec's fields in scope and returns the result as text.
func (e *Evaluator) Eval(expr string, rec table.Record) (string, error) {
	predeclared := make(starlark.StringDict, len(e.builtins)+len(rec)+1)
	for k, v := range e.builtins {
		predeclared[k] = v
	}
	row := starlark.NewDict(len(rec))
	for k, v := range rec {
		s := starlark.String(v)
		if err := row.SetKey(starlark.String(k), s); err != nil {
			return "", err
		}
		if isIdentifier(k) && predeclared[k] == nil && starlark.Universe[k] == nil {
			predeclared[k] = s
		}
	}
	row.Freeze()
	predeclared["row"] = row
	e.thread.SetLocal(rowKey, rec)

	val, err := starlark.Eval(e.thread, "<derive>", expr, predeclared)
	if err != nil {
		return "", fmt.Errorf("starlark evaluation error: %w", err)
	}
	return ToText(val)
}

// Apply evaluates every rule for every record of t, in order, storing the
// results as fields. Later rules see the fields set by earlier ones.
func (e *Evaluator) Apply(t *table.Table, rules []Rule) error {
	if len(rules) == 0 {
		return nil
	}
	for i, rec := range t.All() {
		for _, r := range rules {
			v, err := e.Eval(r.Expr, rec)
			if err != nil {
				return fmt.Errorf("table %q record %d: deriving %s: %w", t.Name, i+1, r.Field, err)
			}
			rec[r.Field] = v
		}
	}
	for _, r := range rules {
		if len(t.Columns) > 0 && !slices.Contains(t.Columns, r.Field) {
			t.Columns = append(t.Columns, r.Field)
		}
	}
	e.logger.Debug("derived fields", "table", t.Name, "rules", len(rules), "records", t.Len())
	return nil
}

// ToText converts a scalar Starlark value to a field value.
func ToText(val starlark.Value) (string, error) {
	switch v := val.(type) {
	case starlark.NoneType:
		return "", nil
	case starlark.String:
		return string(v), nil
	case starlark.Int:
		return v.String(), nil
	case starlark.Float:
		return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	case starlark.Bool:
		return strconv.FormatBool(bool(v)), nil
	}
	return "", fmt.Errorf("derived value must be a string, number, bool or None, got %s", val.Type())
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return !keywords[s]
}

var keywords = map[string]bool{
	"and": true, "break": true, "continue": true, "def": true, "elif": true,
	"else": true, "for": true, "if": true, "in": true, "lambda": true,
	"load": true, "not": true, "or": true, "pass": true, "return": true,
	"while": true,
}

const rowKey = "popvars.row"

func createBuiltins(logger *slog.Logger) starlark.StringDict {
	return starlark.StringDict{
		"field": starlark.NewBuiltin("field", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			var def starlark.Value = starlark.None
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
				return nil, err
			}
			rec, _ := thread.Local(rowKey).(table.Record)
			if v, ok := rec[name]; ok {
				return starlark.String(v), nil
			}
			if def == starlark.None {
				return nil, fmt.Errorf("field: record has no field %q", name)
			}
			return def, nil
		}),
		"pad": starlark.NewBuiltin("pad", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			var width int
			fill := "0"
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "s", &s, "width", &width, "fill?", &fill); err != nil {
				return nil, err
			}
			if len(fill) != 1 {
				return nil, fmt.Errorf("pad: fill must be a single character, got %q", fill)
			}
			if n := width - len(s); n > 0 {
				s = strings.Repeat(fill, n) + s
			}
			return starlark.String(s), nil
		}),
		"log": starlark.NewBuiltin("log", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var buf []string
			for _, a := range args {
				if s, ok := a.(starlark.String); ok {
					buf = append(buf, string(s))
				} else {
					buf = append(buf, a.String())
				}
			}
			logger.Info("derive", "message", strings.Join(buf, " "))
			return starlark.None, nil
		}),
	}
}
