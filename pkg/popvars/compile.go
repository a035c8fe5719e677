package popvars

import (
	"fmt"
	"slices"

	"github.com/neurodesk/popvars/pkg/table"
)

// SelectionKind classifies how a for block obtains its records.
type SelectionKind int

const (
	SelectTable SelectionKind = iota
	SelectWhere
	SelectOther
	SelectOtherWhere
)

func (k SelectionKind) String() string {
	switch k {
	case SelectTable:
		return "table"
	case SelectWhere:
		return "where"
	case SelectOther:
		return "other"
	case SelectOtherWhere:
		return "other+where"
	}
	return fmt.Sprintf("SelectionKind(%d)", int(k))
}

// Selection describes the records a for block iterates, computed from the
// tag alone.
type Selection struct {
	Table string
	Where *Comparison
	// Other excludes the record identified by this lookup's index field.
	Other *Lookup
}

func (s Selection) Kind() SelectionKind {
	switch {
	case s.Other != nil && s.Where != nil:
		return SelectOtherWhere
	case s.Other != nil:
		return SelectOther
	case s.Where != nil:
		return SelectWhere
	}
	return SelectTable
}

// Template is a compiled template. It is immutable and safe for concurrent use.
type Template struct {
	nodes      []Node
	prog       []instr
	selections []Selection
	tables     []string
}

// Compile parses and compiles src.
func Compile(src string) (*Template, error) {
	nodes, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return CompileNodes(nodes), nil
}

// CompileNodes compiles a parsed tree. Every lookup step is resolved here to
// either a loop alias or a table join, since loop bindings are lexical.
func CompileNodes(nodes []Node) *Template {
	c := &compiler{}
	prog := c.compile(nodes, nil)
	return &Template{nodes: nodes, prog: prog, selections: c.selections, tables: c.tables}
}

// Nodes returns the parsed tree the template was compiled from.
func (t *Template) Nodes() []Node { return t.nodes }

// Selections returns the for-block descriptors in document order.
func (t *Template) Selections() []Selection { return t.selections }

// Tables returns the lookup tables the template reads, in first-use order.
// Loop aliases are not included.
func (t *Template) Tables() []string { return t.tables }

type instr interface{ instr() }

type textInstr struct{ text string }

type expandInstr struct{ expr *expandExpr }

type ifInstr struct {
	cond *condition
	body []instr
}

type forInstr struct {
	name    string
	sel     Selection
	where   *condition
	exclude *excludeKey
	body    []instr
}

func (textInstr) instr()   {}
func (expandInstr) instr() {}
func (*ifInstr) instr()    {}
func (*forInstr) instr()   {}

type expandExpr struct {
	src   Expand
	steps []step
}

type condition struct {
	src  Comparison
	left *expandExpr
}

// step moves the render from one context record to the next.
type step interface {
	resolve(r *renderer, cur table.Record, sc *Scope) (table.Record, error)
}

// aliasStep switches to the record a loop bound to name.
type aliasStep struct{ name string }

// joinStep reads index from the current record and finds that $id in table.
type joinStep struct{ table, index string }

// excludeKey locates the $id an "other" loop leaves out: the $id of a bound
// record, or the driving record's value at the index field.
type excludeKey struct {
	field string
	alias bool
}

type compiler struct {
	selections []Selection
	tables     []string
}

func (c *compiler) useTable(name string) {
	if !slices.Contains(c.tables, name) {
		c.tables = append(c.tables, name)
	}
}

// compile walks nodes; bound holds the names introduced by enclosing loops.
func (c *compiler) compile(nodes []Node, bound *Scope) []instr {
	prog := make([]instr, 0, len(nodes))
	for _, n := range nodes {
		switch t := n.(type) {
		case *TextNode:
			prog = append(prog, textInstr{text: t.Text})
		case *ExpandNode:
			prog = append(prog, expandInstr{expr: c.expand(t.Expand, bound)})
		case *BlockNode:
			switch tag := t.Tag.(type) {
			case *IfTag:
				prog = append(prog, &ifInstr{
					cond: c.condition(tag.Cond, bound),
					body: c.compile(t.Body, bound),
				})
			case *ForTag:
				prog = append(prog, c.forBlock(tag, t.Body, bound))
			}
		}
	}
	return prog
}

func (c *compiler) forBlock(tag *ForTag, body []Node, bound *Scope) *forInstr {
	f := &forInstr{
		name: tag.Name,
		sel:  Selection{Table: tag.Lookup.Table, Where: tag.Where},
	}
	if tag.Other {
		l := tag.Lookup
		f.sel.Other = &l
		_, alias := bound.Lookup(l.IndexField())
		f.exclude = &excludeKey{field: l.IndexField(), alias: alias}
	}
	c.selections = append(c.selections, f.sel)
	c.useTable(f.sel.Table)

	inner := bound.With(tag.Name, nil)
	if tag.Where != nil {
		f.where = c.condition(*tag.Where, inner)
	}
	f.body = c.compile(body, inner)
	return f
}

func (c *compiler) condition(cmp Comparison, bound *Scope) *condition {
	return &condition{src: cmp, left: c.expand(cmp.Left, bound)}
}

func (c *compiler) expand(e Expand, bound *Scope) *expandExpr {
	x := &expandExpr{src: e, steps: make([]step, 0, len(e.Path))}
	for _, l := range e.Path {
		idx := l.IndexField()
		if _, ok := bound.Lookup(idx); ok {
			x.steps = append(x.steps, aliasStep{name: idx})
		} else {
			x.steps = append(x.steps, joinStep{table: l.Table, index: idx})
			c.useTable(l.Table)
		}
	}
	return x
}
