package project

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neurodesk/popvars/pkg/table"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestLoadAndRender(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"popvars.yaml": `
template: tpl/player.txt
vars: {path: vars.csv}
tables:
  - path: data/country.csv
    derive:
      - {field: label, expr: "name.upper()"}
workers: 2
`,
		"tpl/player.txt":   "{{name}} from {{country@home.label}}",
		"vars.csv":         "$id,name,home\na,Ann,nz\nb,Bob,au\n",
		"data/country.csv": "$id,name\nnz,New Zealand\nau,Australia\n",
	})

	p, err := Load(filepath.Join(dir, DefaultFile))
	require.NoError(t, err)
	require.NoError(t, p.Complete())
	require.Equal(t, 2, p.Workers)
	require.Equal(t, "country", p.Tables[0].TableName())

	tpl, err := p.LoadTemplate()
	require.NoError(t, err)
	def, err := p.Definition(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, table.VarsName, def.Vars.Name)

	out, err := tpl.RenderAll(def)
	require.NoError(t, err)
	require.Equal(t, []string{"Ann from NEW ZEALAND", "Bob from AUSTRALIA"}, out)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("template: a.txt\ntemplates: b.txt\n"), ".")
	require.Error(t, err)
	require.Contains(t, err.Error(), "templates")
}

func TestDecodeEmpty(t *testing.T) {
	p, err := Decode(strings.NewReader(""), "/work")
	require.NoError(t, err)
	require.Equal(t, "/work", p.Dir())
	require.Error(t, p.Complete())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "path and url",
			yaml: "tables: [{path: a.csv, url: 'http://x/a.csv'}]",
			want: "sets more than one of path, url",
		},
		{
			name: "no source",
			yaml: "tables: [{name: a}]",
			want: "must set one of path, url",
		},
		{
			name: "duplicate table names",
			yaml: "tables: [{path: a.csv}, {path: other/a.csv}]",
			want: "duplicate value: a",
		},
		{
			name: "negative workers",
			yaml: "workers: -1",
			want: "workers must not be negative",
		},
		{
			name: "bad output name",
			yaml: "output: {name: '{{'}",
			want: "invalid template",
		},
		{
			name: "bad exists policy",
			yaml: "output: {exists: replace}",
			want: "output.exists must be one of",
		},
		{
			name: "special derive field",
			yaml: "tables: [{path: a.csv, derive: [{field: $id, expr: '1'}]}]",
			want: "special fields cannot be derived",
		},
		{
			name: "vars without source",
			yaml: "vars: {derive: [{field: x, expr: '1'}]}",
			want: "vars: table source must set one of",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.yaml), ".")
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRemoteTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("$id,title\nepl,Premier League\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"vars.csv": "$id,league\nx,epl\n",
	})
	p := New(dir)
	p.Vars = Source{Path: "vars.csv"}
	p.Tables = []Source{{URL: srv.URL + "/league.csv?v=1"}}
	p.CacheDir = "cache"
	require.NoError(t, p.Validate())

	def, err := p.Definition(context.Background(), nil)
	require.NoError(t, err)
	league, ok := def.Table("league")
	require.True(t, ok)
	require.Equal(t, "Premier League", league.Records[0]["title"])
	_, err = os.Stat(filepath.Join(dir, "cache"))
	require.NoError(t, err)
}

func TestRemoteTableSharedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("$id,title\nepl,Premier League\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"vars.csv": "$id\nx\n"})
	p := New(dir)
	p.Vars = Source{Path: "vars.csv"}
	p.Tables = []Source{
		{Name: "home", URL: srv.URL + "/league.csv"},
		{Name: "away", URL: srv.URL + "/league.csv"},
	}
	def, err := p.Definition(context.Background(), nil)
	require.NoError(t, err)
	for _, name := range []string{"home", "away"} {
		tbl, ok := def.Table(name)
		require.True(t, ok)
		require.Equal(t, "Premier League", tbl.Records[0]["title"])
	}
}

func TestDefinitionReportsMissingFile(t *testing.T) {
	p := New(t.TempDir())
	p.Vars = Source{Path: "vars.csv"}
	_, err := p.Definition(context.Background(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), `loading table "vars"`)
}

func TestFileName(t *testing.T) {
	def, err := table.NewDefinition(nil)
	require.NoError(t, err)

	o := Output{}
	name, err := o.FileName(3, table.Record{"$id": "a"}, def)
	require.NoError(t, err)
	require.Equal(t, "3.txt", name)

	o.Name = "{{$id}}.md"
	name, err = o.FileName(3, table.Record{"$id": "a"}, def)
	require.NoError(t, err)
	require.Equal(t, "a.md", name)

	name, err = o.FileName(3, table.Record{"$id": "a", "$outfile": "custom/a.txt"}, def)
	require.NoError(t, err)
	require.Equal(t, "custom/a.txt", name)
}

func TestPathRejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	for _, bad := range []string{"../x.txt", "a/../../x.txt", "/etc/passwd", "."} {
		_, err := Path(dir, bad)
		require.Error(t, err, bad)
	}
	p, err := Path(dir, "sub/../ok.txt")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "ok.txt"), p)
}

func TestWriteStream(t *testing.T) {
	sep := "---\n"
	var buf bytes.Buffer
	_, err := Output{Separator: &sep}.Write(&buf, "", []string{"a\n", "b\n"}, nil)
	require.NoError(t, err)
	require.Equal(t, "a\n---\nb\n", buf.String())

	buf.Reset()
	_, err = Output{}.Write(&buf, "", []string{"a", "b"}, nil)
	require.NoError(t, err)
	require.Equal(t, "a\nb", buf.String())
}

func TestWriteFiles(t *testing.T) {
	def, err := table.NewDefinition(table.New(table.VarsName,
		table.Record{"$id": "a", "$outfile": "nested/first.txt"},
		table.Record{"$id": "b"},
	))
	require.NoError(t, err)
	dir := t.TempDir()

	written, err := Output{}.Write(nil, dir, []string{"one", "two"}, def)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "nested/first.txt"), filepath.Join(dir, "2.txt")}, written)
	b, err := os.ReadFile(filepath.Join(dir, "2.txt"))
	require.NoError(t, err)
	require.Equal(t, "two", string(b))

	_, err = Output{Exists: ExistsError}.Write(nil, dir, []string{"one", "two"}, def)
	require.ErrorContains(t, err, "already exists")

	written, err = Output{Exists: ExistsSkip}.Write(nil, dir, []string{"x", "y"}, def)
	require.NoError(t, err)
	require.Empty(t, written)
}

func TestWriteRejectsCollisions(t *testing.T) {
	def, err := table.NewDefinition(table.New(table.VarsName,
		table.Record{"$id": "a", "$outfile": "same.txt"},
		table.Record{"$id": "b", "$outfile": "same.txt"},
	))
	require.NoError(t, err)
	_, err = Output{}.Write(nil, t.TempDir(), []string{"1", "2"}, def)
	require.ErrorContains(t, err, "already written by row 1")
}
