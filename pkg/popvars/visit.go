package popvars

import (
	"bytes"
	"fmt"
)

type Visitor interface {
	Visit(n Node) error
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(n Node) error

func (f VisitorFunc) Visit(n Node) error { return f(n) }

// Walk visits n and then its body, depth first.
func Walk(v Visitor, n Node) error {
	if err := v.Visit(n); err != nil {
		return err
	}
	if b, ok := n.(*BlockNode); ok {
		for _, c := range b.Body {
			if err := Walk(v, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// WalkAll walks every node of a tree.
func WalkAll(v Visitor, nodes []Node) error {
	for _, n := range nodes {
		if err := Walk(v, n); err != nil {
			return err
		}
	}
	return nil
}

// Pretty returns a line-oriented string representation of the tree.
func Pretty(nodes []Node) string {
	var buf bytes.Buffer
	for _, n := range nodes {
		ppNode(&buf, 0, n)
	}
	return buf.String()
}

func ppNode(buf *bytes.Buffer, indent int, n Node) {
	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}
	switch t := n.(type) {
	case *TextNode:
		fmt.Fprintf(buf, "Text(%q)\n", t.Text)
	case *ExpandNode:
		fmt.Fprintf(buf, "Expand(%s)\n", t.Expand)
	case *BlockNode:
		switch tag := t.Tag.(type) {
		case *ForTag:
			fmt.Fprintf(buf, "For(%s)\n", tag)
		case *IfTag:
			fmt.Fprintf(buf, "If(%s)\n", tag.Cond)
		}
		for _, c := range t.Body {
			ppNode(buf, indent+2, c)
		}
	}
}
