package popvars

import (
	"context"
	"fmt"
	"strings"

	"github.com/neurodesk/popvars/pkg/table"
	"golang.org/x/sync/errgroup"
)

type renderer struct {
	def  *table.Definition
	vars table.Record
	buf  strings.Builder
}

// Render renders the template for one driving record.
func (t *Template) Render(vars table.Record, def *table.Definition) (string, error) {
	r := &renderer{def: def, vars: vars}
	if err := r.run(t.prog, nil); err != nil {
		return "", err
	}
	return r.buf.String(), nil
}

// RenderAll renders one output per record of the driving table, in order.
// The first failure aborts the batch and is returned as a *RowError.
func (t *Template) RenderAll(def *table.Definition) ([]string, error) {
	out := make([]string, 0, def.Vars.Len())
	for i, rec := range def.Vars.All() {
		s, err := t.Render(rec, def)
		if err != nil {
			return nil, &RowError{Row: i + 1, Err: err}
		}
		out = append(out, s)
	}
	return out, nil
}

// RenderParallel is RenderAll spread over at most workers goroutines
// (unlimited when workers <= 0). Outputs keep driving-table order. Every
// record is rendered, so when several fail the lowest row is reported.
func (t *Template) RenderParallel(ctx context.Context, def *table.Definition, workers int) ([]string, error) {
	n := def.Vars.Len()
	out := make([]string, n)
	errs := make([]error, n)

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, rec := range def.Vars.All() {
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return nil, err
		}
		g.Go(func() error {
			s, err := t.Render(rec, def)
			if err != nil {
				errs[i] = &RowError{Row: i + 1, Err: err}
				return errs[i]
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err == nil {
		return out, nil
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("render failed without a row error")
}

func (r *renderer) run(prog []instr, sc *Scope) error {
	for _, in := range prog {
		switch t := in.(type) {
		case textInstr:
			r.buf.WriteString(t.text)
		case expandInstr:
			v, err := r.expand(t.expr, r.vars, sc)
			if err != nil {
				return err
			}
			r.buf.WriteString(v)
		case *ifInstr:
			ok, err := r.test(t.cond, r.vars, sc)
			if err != nil {
				return err
			}
			if ok {
				if err := r.run(t.body, sc); err != nil {
					return err
				}
			}
		case *forInstr:
			if err := r.loop(t, sc); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unhandled instruction %T", in)
		}
	}
	return nil
}

func (r *renderer) loop(f *forInstr, sc *Scope) error {
	tbl, ok := r.def.Table(f.sel.Table)
	if !ok {
		return &ResolutionError{Kind: ErrUnknownTable, Table: f.sel.Table}
	}
	skip := -1
	if f.exclude != nil {
		key, err := r.excludedID(f.exclude, sc)
		if err != nil {
			return err
		}
		i, found, err := tbl.Find(key)
		if err != nil {
			return &ResolutionError{Kind: ErrMissingID, Table: tbl.Name, Err: err}
		}
		if found {
			skip = i
		}
	}
	for i, rec := range tbl.All() {
		if i == skip {
			continue
		}
		inner := sc.With(f.name, rec)
		if f.where != nil {
			ok, err := r.test(f.where, rec, inner)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		if err := r.run(f.body, inner); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) excludedID(k *excludeKey, sc *Scope) (string, error) {
	if k.alias {
		rec, _ := sc.Lookup(k.field)
		id, ok := rec.ID()
		if !ok {
			return "", &ResolutionError{Kind: ErrMissingField, Field: table.FieldID}
		}
		return id, nil
	}
	v, ok := r.vars[k.field]
	if !ok {
		return "", &ResolutionError{Kind: ErrMissingField, Field: k.field}
	}
	return v, nil
}

// expand follows the lookup path from start and reads the final field.
func (r *renderer) expand(x *expandExpr, start table.Record, sc *Scope) (string, error) {
	cur := start
	for _, st := range x.steps {
		next, err := st.resolve(r, cur, sc)
		if err != nil {
			return "", err
		}
		cur = next
	}
	v, ok := cur[x.src.Field]
	if !ok {
		return "", &ResolutionError{Kind: ErrMissingField, Field: x.src.Field}
	}
	return v, nil
}

func (r *renderer) test(c *condition, start table.Record, sc *Scope) (bool, error) {
	v, err := r.expand(c.left, start, sc)
	if err != nil {
		return false, err
	}
	ok, err := c.src.Value.Match(c.src.Op, v)
	if err != nil {
		return false, &ResolutionError{
			Kind:  ErrBadValue,
			Field: c.src.Left.String(),
			Key:   v,
			Want:  c.src.Value.Kind.String(),
			Err:   err,
		}
	}
	return ok, nil
}

func (s aliasStep) resolve(_ *renderer, _ table.Record, sc *Scope) (table.Record, error) {
	rec, ok := sc.Lookup(s.name)
	if !ok {
		return nil, &ResolutionError{Kind: ErrMissingField, Field: s.name}
	}
	return rec, nil
}

func (s joinStep) resolve(r *renderer, cur table.Record, _ *Scope) (table.Record, error) {
	key, ok := cur[s.index]
	if !ok {
		return nil, &ResolutionError{Kind: ErrMissingField, Field: s.index}
	}
	tbl, ok := r.def.Table(s.table)
	if !ok {
		return nil, &ResolutionError{Kind: ErrUnknownTable, Table: s.table}
	}
	rec, found, err := tbl.Index(key)
	if err != nil {
		return nil, &ResolutionError{Kind: ErrMissingID, Table: s.table, Err: err}
	}
	if !found {
		return nil, &ResolutionError{Kind: ErrNoMatch, Table: s.table, Key: key}
	}
	return rec, nil
}
