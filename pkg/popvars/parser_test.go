package popvars

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var ignorePos = cmp.Options{
	cmpopts.IgnoreFields(ExpandNode{}, "Pos"),
	cmpopts.IgnoreFields(BlockNode{}, "Pos"),
}

func expand(field string, path ...Lookup) *ExpandNode {
	return &ExpandNode{Expand: Expand{Path: path, Field: field}}
}

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []Node
	}{
		{
			name: "text and field",
			src:  "Hello {{ name }}!",
			want: []Node{&TextNode{Text: "Hello "}, expand("name"), &TextNode{Text: "!"}},
		},
		{
			name: "lookup",
			src:  "{{country.code}}",
			want: []Node{expand("code", Lookup{Table: "country"})},
		},
		{
			name: "explicit index",
			src:  "{{country@home.code}}",
			want: []Node{expand("code", Lookup{Table: "country", Index: "home"})},
		},
		{
			name: "chained lookups",
			src:  "{{team.country@flag.`full name`}}",
			want: []Node{expand("full name", Lookup{Table: "team"}, Lookup{Table: "country", Index: "flag"})},
		},
		{
			name: "quoted segments",
			src:  "{{`name with spaces`.`a.b@c`}}",
			want: []Node{expand("a.b@c", Lookup{Table: "name with spaces"})},
		},
		{
			name: "escaped quote in segment",
			src:  "{{`a\\`b`}}",
			want: []Node{expand("a`b")},
		},
		{
			name: "escapes in bare segment",
			src:  `{{a\.b\@c}}`,
			want: []Node{expand("a.b@c")},
		},
		{
			name: "special field",
			src:  "{{x.$id}}",
			want: []Node{expand("$id", Lookup{Table: "x"})},
		},
		{
			name: "text escapes",
			src:  `\{\{not an expr\}\} \@ \\`,
			want: []Node{&TextNode{Text: `{{not an expr}} @ \`}},
		},
		{
			name: "lone braces are text",
			src:  "a { b } c @ d }}",
			want: []Node{&TextNode{Text: "a { b } c @ d }}"}},
		},
		{
			name: "for with everything",
			src:  "{@ for other x in team@lead where size >= 3 @}{{x.$id}}{@ end for @}",
			want: []Node{&BlockNode{
				Tag: &ForTag{
					Name:   "x",
					Lookup: Lookup{Table: "team", Index: "lead"},
					Other:  true,
					Where:  &Comparison{Left: Expand{Field: "size"}, Op: OpGe, Value: UintLiteral(3)},
				},
				Body: []Node{expand("$id", Lookup{Table: "x"})},
			}},
		},
		{
			name: "loop variable called other",
			src:  "{@ for other in team@}{@end for@}",
			want: []Node{&BlockNode{Tag: &ForTag{Name: "other", Lookup: Lookup{Table: "team"}}}},
		},
		{
			name: "if",
			src:  `{@ if team.name != "Axis" @}A{@ end if @}`,
			want: []Node{&BlockNode{
				Tag: &IfTag{Cond: Comparison{
					Left:  Expand{Path: []Lookup{{Table: "team"}}, Field: "name"},
					Op:    OpNe,
					Value: TextLiteral("Axis"),
				}},
				Body: []Node{&TextNode{Text: "A"}},
			}},
		},
		{
			name: "comparison without spaces",
			src:  "{@ if size<=-2@}{@ end if @}",
			want: []Node{&BlockNode{Tag: &IfTag{Cond: Comparison{
				Left: Expand{Field: "size"}, Op: OpLe, Value: IntLiteral(-2),
			}}}},
		},
		{
			name: "nested blocks of the same kind",
			src:  "{@ for a in t @}{@ for b in t @}x{@ end for @}y{@ end for @}z",
			want: []Node{
				&BlockNode{
					Tag: &ForTag{Name: "a", Lookup: Lookup{Table: "t"}},
					Body: []Node{
						&BlockNode{
							Tag:  &ForTag{Name: "b", Lookup: Lookup{Table: "t"}},
							Body: []Node{&TextNode{Text: "x"}},
						},
						&TextNode{Text: "y"},
					},
				},
				&TextNode{Text: "z"},
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Parse(c.src)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if diff := cmp.Diff(c.want, got, ignorePos); diff != "" {
				t.Fatalf("tree mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseLiterals(t *testing.T) {
	cases := []struct {
		src  string
		want Literal
	}{
		{`"Allies"`, TextLiteral("Allies")},
		{`""`, TextLiteral("")},
		{`"say \"hi\""`, TextLiteral(`say "hi"`)},
		{"10", UintLiteral(10)},
		{"-3", IntLiteral(-3)},
		{"+4", UintLiteral(4)},
		{"1.5", FloatLiteral(1.5)},
		{"1e3", FloatLiteral(1000)},
		{"99999999999999999999", FloatLiteral(99999999999999999999)},
	}
	for _, c := range cases {
		t.Run(c.src, func(t *testing.T) {
			nodes, err := Parse("{@ if f = " + c.src + " @}{@ end if @}")
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			got := nodes[0].(*BlockNode).Tag.(*IfTag).Cond.Value
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Fatalf("literal mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"whitespace inside expression", "{{awueif q34t@23r .r}}", "expected }}"},
		{"index without name", "{{a@.b}}", "expected index field after @"},
		{"index on final field", "{{a@b}}", "expected . after a@b"},
		{"unterminated interpolation", "{{a", "unterminated {{"},
		{"single closing brace", "{{a}", "expected }}"},
		{"empty interpolation", "{{ }}", "expected field name"},
		{"unterminated quote", "{{`abc}}", "unterminated quoted field name"},
		{"empty quote", "{{``}}", "empty quoted field name"},
		{"unterminated block", "{@ for x in t @}body", "unterminated for block"},
		{"mismatched end", "{@ for x in t @}{@ end if @}", "mismatched end tag: expected end for, got end if"},
		{"stray end", "text{@ end for @}", "unexpected end for"},
		{"unknown tag", "{@ while x @}", `unrecognized block tag "while"`},
		{"missing tag", "{@ @}", "expected block tag"},
		{"bad text escape", `a \n b`, `invalid escape sequence \n`},
		{"trailing backslash", `a \`, "unterminated escape sequence"},
		{"bad segment escape", `{{a\qb}}`, `invalid escape sequence \q`},
		{"unparseable literal", "{@ if x > ten @}{@ end if @}", `unparseable literal "ten"`},
		{"missing literal", "{@ if x > @}{@ end if @}", "expected literal after >"},
		{"missing operator", "{@ if x ~ 1 @}{@ end if @}", "expected comparison operator after x"},
		{"missing in", "{@ for x t @}{@ end for @}", `expected in after loop variable "x"`},
		{"missing block close", "{@ for x in t {{x}}", "expected @}"},
		{"unterminated string", `{@ if x = "abc @}`, "unterminated quoted string"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse(c.src)
			if err == nil {
				t.Fatalf("expected error for %q", c.src)
			}
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("got %T, want *SyntaxError", err)
			}
			if !strings.Contains(se.Msg, c.want) {
				t.Fatalf("got %q, want it to contain %q", se.Msg, c.want)
			}
		})
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := Parse("line one\n  {{a b}}")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want *SyntaxError", err)
	}
	if se.Pos.Line != 2 || se.Pos.Column != 7 || se.Pos.Offset != 15 {
		t.Fatalf("got position %+v, want line 2 column 7 offset 15", se.Pos)
	}
	if !strings.HasPrefix(err.Error(), "syntax error at 2:7: ") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestLookupDepthLimit(t *testing.T) {
	ok := "{{" + strings.Repeat("t.", MaxLookupDepth) + "f}}"
	if _, err := Parse(ok); err != nil {
		t.Fatalf("%d lookups should parse: %v", MaxLookupDepth, err)
	}
	tooDeep := "{{" + strings.Repeat("t.", MaxLookupDepth+1) + "f}}"
	if _, err := Parse(tooDeep); err == nil {
		t.Fatalf("%d lookups should fail", MaxLookupDepth+1)
	}
}
