package popvars

import "strings"

// Node is any node in a parsed template.
type Node interface {
	node()
}

// TextNode is literal text with escapes already resolved.
type TextNode struct {
	Text string
}

func (*TextNode) node() {}

// ExpandNode is an interpolation: {{ expr }}
type ExpandNode struct {
	Expand Expand
	Pos    Position
}

func (*ExpandNode) node() {}

// BlockNode pairs a block tag with its body: {@ tag @} ... {@ end tag @}
type BlockNode struct {
	Tag  Tag
	Body []Node
	Pos  Position
}

func (*BlockNode) node() {}

// Tag is the opening tag of a block, either *ForTag or *IfTag.
type Tag interface {
	TagName() string
}

// ForTag repeats its body once per selected record, binding it to Name.
//
//	{@ for [other] name in table[@index] [where comparison] @}
type ForTag struct {
	Name   string
	Lookup Lookup
	Other  bool
	Where  *Comparison
}

func (*ForTag) TagName() string { return "for" }

func (t *ForTag) String() string {
	var b strings.Builder
	b.WriteString("for ")
	if t.Other {
		b.WriteString("other ")
	}
	b.WriteString(quoteSegment(t.Name))
	b.WriteString(" in ")
	b.WriteString(t.Lookup.String())
	if t.Where != nil {
		b.WriteString(" where ")
		b.WriteString(t.Where.String())
	}
	return b.String()
}

// IfTag renders its body when Cond holds.
type IfTag struct {
	Cond Comparison
}

func (*IfTag) TagName() string { return "if" }

func (t *IfTag) String() string { return "if " + t.Cond.String() }

// Lookup is one join step: read the index field from the current record and
// find the record in Table whose $id equals it.
type Lookup struct {
	Table string
	// Index is the field holding the join key. Empty means Table.
	Index string
}

// IndexField returns the field that holds the join key.
func (l Lookup) IndexField() string {
	if l.Index != "" {
		return l.Index
	}
	return l.Table
}

func (l Lookup) String() string {
	if l.Index == "" {
		return quoteSegment(l.Table)
	}
	return quoteSegment(l.Table) + "@" + quoteSegment(l.Index)
}

// Expand is a chain of lookups followed by a field read.
type Expand struct {
	Path  []Lookup
	Field string
}

func (e Expand) String() string {
	var b strings.Builder
	for _, l := range e.Path {
		b.WriteString(l.String())
		b.WriteByte('.')
	}
	b.WriteString(quoteSegment(e.Field))
	return b.String()
}

// Comparison is "expand op literal".
type Comparison struct {
	Left  Expand
	Op    Operator
	Value Literal
}

func (c Comparison) String() string {
	return c.Left.String() + " " + c.Op.String() + " " + c.Value.String()
}
