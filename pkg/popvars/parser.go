package popvars

// MaxLookupDepth bounds the number of lookups in one expression.
const MaxLookupDepth = 100

// Parse parses a template into its node tree. Parsing stops at the first
// error, which is always a *SyntaxError.
func Parse(src string) ([]Node, error) {
	p := &parser{s: scanner{src: src}}
	nodes, err := p.parseNodes("", 0)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

type parser struct {
	s scanner
}

// parseNodes parses until the end tag matching until, or to EOF when until
// is empty. open is the offset of the block being parsed.
func (p *parser) parseNodes(until string, open int) ([]Node, error) {
	var nodes []Node
	for {
		if p.s.eof() {
			if until != "" {
				return nil, p.s.errorf(open, "unterminated %s block", until)
			}
			return nodes, nil
		}
		switch {
		case p.s.hasPrefix("{{"):
			n, err := p.parseExpand()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		case p.s.hasPrefix("{@"):
			start := p.s.i
			p.s.i += 2
			p.s.skipSpace()
			name := p.s.word()
			switch name {
			case "end":
				if err := p.parseEnd(until, start); err != nil {
					return nil, err
				}
				return nodes, nil
			case "for":
				n, err := p.parseFor(start)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, n)
			case "if":
				n, err := p.parseIf(start)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, n)
			case "":
				return nil, p.s.errorf(p.s.i, "expected block tag")
			default:
				return nil, p.s.errorf(start, "unrecognized block tag %q", name)
			}
		default:
			text, err := p.s.text()
			if err != nil {
				return nil, err
			}
			if text != "" {
				nodes = append(nodes, &TextNode{Text: text})
			}
		}
	}
}

func (p *parser) parseEnd(until string, start int) error {
	if p.s.skipSpace() == 0 {
		return p.s.errorf(p.s.i, "expected tag name after end")
	}
	name := p.s.word()
	if name == "" {
		return p.s.errorf(p.s.i, "expected tag name after end")
	}
	if err := p.closeTag(); err != nil {
		return err
	}
	if until == "" {
		return p.s.errorf(start, "unexpected end %s", name)
	}
	if name != until {
		return p.s.errorf(start, "mismatched end tag: expected end %s, got end %s", until, name)
	}
	return nil
}

// closeTag consumes optional whitespace and the "@}" that ends a block tag.
func (p *parser) closeTag() error {
	p.s.skipSpace()
	if p.s.eof() {
		return p.s.errorf(p.s.i, "unterminated block tag")
	}
	if !p.s.match("@}") {
		return p.s.errorf(p.s.i, "expected @}")
	}
	return nil
}

func (p *parser) parseExpand() (*ExpandNode, error) {
	start := p.s.i
	p.s.i += 2
	p.s.skipSpace()
	e, err := p.parseExpandExpr("")
	if err != nil {
		return nil, err
	}
	p.s.skipSpace()
	if p.s.eof() {
		return nil, p.s.errorf(start, "unterminated {{")
	}
	if !p.s.match("}}") {
		return nil, p.s.errorf(p.s.i, "expected }}")
	}
	return &ExpandNode{Expand: e, Pos: positionAt(p.s.src, start)}, nil
}

// parseExpandExpr parses lookup segments separated by "." and a final field.
func (p *parser) parseExpandExpr(stop string) (Expand, error) {
	var e Expand
	for {
		name, err := p.s.segment("field name", stop)
		if err != nil {
			return Expand{}, err
		}
		var index string
		if p.isIndex() {
			p.s.i++
			index, err = p.s.segment("index field after @", stop)
			if err != nil {
				return Expand{}, err
			}
			if p.s.peek() != '.' {
				return Expand{}, p.s.errorf(p.s.i, "expected . after %s@%s", name, index)
			}
		}
		if p.s.peek() != '.' {
			e.Field = name
			return e, nil
		}
		p.s.i++
		e.Path = append(e.Path, Lookup{Table: name, Index: index})
		if len(e.Path) > MaxLookupDepth {
			return Expand{}, p.s.errorf(p.s.i, "more than %d lookups in one expression", MaxLookupDepth)
		}
	}
}

// isIndex reports whether an explicit index follows: "@" that does not
// start the "@}" block close.
func (p *parser) isIndex() bool {
	return p.s.peek() == '@' && p.s.peekAt(1) != '}'
}

func (p *parser) parseLookup() (Lookup, error) {
	name, err := p.s.segment("table name", "")
	if err != nil {
		return Lookup{}, err
	}
	l := Lookup{Table: name}
	if p.isIndex() {
		p.s.i++
		l.Index, err = p.s.segment("index field after @", "")
		if err != nil {
			return Lookup{}, err
		}
	}
	return l, nil
}

func (p *parser) parseFor(start int) (*BlockNode, error) {
	if p.s.skipSpace() == 0 {
		return nil, p.s.errorf(p.s.i, "expected whitespace after for")
	}
	tag := &ForTag{}
	if save := p.s.i; p.s.keyword("other") {
		p.s.skipSpace()
		// "for other in t" binds a loop variable called other
		if p.s.keyword("in") {
			p.s.i = save
		} else {
			tag.Other = true
		}
	}
	name, err := p.s.segment("loop variable name", "")
	if err != nil {
		return nil, err
	}
	tag.Name = name
	p.s.skipSpace()
	if !p.s.keyword("in") {
		return nil, p.s.errorf(p.s.i, "expected in after loop variable %q", name)
	}
	p.s.skipSpace()
	if tag.Lookup, err = p.parseLookup(); err != nil {
		return nil, err
	}
	if p.s.skipSpace() > 0 && p.s.keyword("where") {
		p.s.skipSpace()
		c, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		tag.Where = &c
	}
	if err := p.closeTag(); err != nil {
		return nil, err
	}
	body, err := p.parseNodes("for", start)
	if err != nil {
		return nil, err
	}
	return &BlockNode{Tag: tag, Body: body, Pos: positionAt(p.s.src, start)}, nil
}

func (p *parser) parseIf(start int) (*BlockNode, error) {
	if p.s.skipSpace() == 0 {
		return nil, p.s.errorf(p.s.i, "expected whitespace after if")
	}
	c, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if err := p.closeTag(); err != nil {
		return nil, err
	}
	body, err := p.parseNodes("if", start)
	if err != nil {
		return nil, err
	}
	return &BlockNode{Tag: &IfTag{Cond: c}, Body: body, Pos: positionAt(p.s.src, start)}, nil
}

func (p *parser) parseComparison() (Comparison, error) {
	left, err := p.parseExpandExpr(comparisonStops)
	if err != nil {
		return Comparison{}, err
	}
	p.s.skipSpace()
	op, ok := p.s.operator()
	if !ok {
		return Comparison{}, p.s.errorf(p.s.i, "expected comparison operator after %s", left)
	}
	p.s.skipSpace()
	at := p.s.i
	if p.s.peek() == '"' {
		text, err := p.s.quoted('"', stringEscapes, "string")
		if err != nil {
			return Comparison{}, err
		}
		return Comparison{Left: left, Op: op, Value: TextLiteral(text)}, nil
	}
	tok := p.s.literalToken()
	lit, ok := parseNumber(tok)
	if !ok {
		if tok == "" {
			return Comparison{}, p.s.errorf(at, "expected literal after %s", op)
		}
		return Comparison{}, p.s.errorf(at, "unparseable literal %q", tok)
	}
	return Comparison{Left: left, Op: op, Value: lit}, nil
}
