package popvars

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operator is a comparison operator.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpLt
	OpGe
	OpLe
)

// longest tokens first so "=" never shadows "!=", ">=" or "<="
var operatorTokens = []struct {
	tok string
	op  Operator
}{
	{"!=", OpNe},
	{">=", OpGe},
	{"<=", OpLe},
	{">", OpGt},
	{"<", OpLt},
	{"=", OpEq},
}

func (o Operator) String() string {
	for _, t := range operatorTokens {
		if t.op == o {
			return t.tok
		}
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// LiteralKind is the declared type of a comparison literal.
type LiteralKind int

const (
	TextKind LiteralKind = iota
	UintKind
	IntKind
	FloatKind
)

func (k LiteralKind) String() string {
	switch k {
	case TextKind:
		return "text"
	case UintKind:
		return "an unsigned integer"
	case IntKind:
		return "a signed integer"
	case FloatKind:
		return "a float"
	}
	return fmt.Sprintf("LiteralKind(%d)", int(k))
}

// Literal is the typed right-hand side of a comparison.
type Literal struct {
	Kind  LiteralKind
	Text  string
	Uint  uint64
	Int   int64
	Float float64
}

func TextLiteral(s string) Literal { return Literal{Kind: TextKind, Text: s} }
func UintLiteral(n uint64) Literal { return Literal{Kind: UintKind, Uint: n} }
func IntLiteral(n int64) Literal { return Literal{Kind: IntKind, Int: n} }
func FloatLiteral(f float64) Literal { return Literal{Kind: FloatKind, Float: f} }

// parseNumber tries unsigned, then signed, then float.
func parseNumber(tok string) (Literal, bool) {
	if tok == "" {
		return Literal{}, false
	}
	switch c := tok[0]; {
	case c >= '0' && c <= '9', c == '-', c == '+', c == '.':
	default:
		return Literal{}, false
	}
	if n, err := parseUint(tok); err == nil {
		return UintLiteral(n), true
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return IntLiteral(n), true
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return FloatLiteral(f), true
	}
	return Literal{}, false
}

func (l Literal) String() string {
	switch l.Kind {
	case UintKind:
		return strconv.FormatUint(l.Uint, 10)
	case IntKind:
		return strconv.FormatInt(l.Int, 10)
	case FloatKind:
		s := strconv.FormatFloat(l.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(l.Text); i++ {
		if l.Text[i] == '"' || l.Text[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(l.Text[i])
	}
	b.WriteByte('"')
	return b.String()
}

// Match reports whether "value op literal" holds. The value is parsed into
// the literal's kind first; a value that does not parse is an error.
func (l Literal) Match(op Operator, value string) (bool, error) {
	switch l.Kind {
	case UintKind:
		v, err := parseUint(value)
		if err != nil {
			return false, err
		}
		return compare(op, v, l.Uint), nil
	case IntKind:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false, err
		}
		return compare(op, v, l.Int), nil
	case FloatKind:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false, err
		}
		if math.IsNaN(v) || math.IsNaN(l.Float) {
			return op == OpNe, nil
		}
		return compare(op, v, l.Float), nil
	}
	return compare(op, value, l.Text), nil
}

// parseUint accepts one leading '+', which strconv.ParseUint rejects.
func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "+"), 10, 64)
}

func compare[T cmp.Ordered](op Operator, a, b T) bool {
	c := cmp.Compare(a, b)
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpGt:
		return c > 0
	case OpLt:
		return c < 0
	case OpGe:
		return c >= 0
	case OpLe:
		return c <= 0
	}
	return false
}
