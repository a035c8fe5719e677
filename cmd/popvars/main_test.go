package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestRenderProjectToStdout(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"popvars.yaml": "template: t.txt\nvars: {path: vars.csv}\noutput: {separator: \"|\"}\n",
		"t.txt":        "Hi {{name}}",
		"vars.csv":     "$id,name\na,Ann\nb,Bob\n",
	})
	out, err := execute(t, "--config", filepath.Join(dir, "popvars.yaml"), "render")
	require.NoError(t, err)
	require.Equal(t, "Hi Ann|Hi Bob", out)
}

func TestRenderFromFlagsToDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"t.txt":       "{{name}} ({{country.name}})",
		"vars.csv":    "$id,name,country,$outfile\na,Ann,nz,ann.txt\nb,Bob,au,\n",
		"country.csv": "$id,name\nnz,New Zealand\nau,Australia\n",
	})
	out := filepath.Join(dir, "out")
	_, err := execute(t, "render", filepath.Join(dir, "t.txt"),
		"--vars", filepath.Join(dir, "vars.csv"),
		"--table", filepath.Join(dir, "country.csv"),
		"-o", out, "--workers", "1")
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(out, "ann.txt"))
	require.NoError(t, err)
	require.Equal(t, "Ann (New Zealand)", string(b))
	b, err = os.ReadFile(filepath.Join(out, "2.txt"))
	require.NoError(t, err)
	require.Equal(t, "Bob (Australia)", string(b))
}

func TestRenderReportsRow(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"t.txt":    "{{missing}}",
		"vars.csv": "$id\na\n",
	})
	_, err := execute(t, "render", filepath.Join(dir, "t.txt"), "--vars", filepath.Join(dir, "vars.csv"))
	require.ErrorContains(t, err, "row 1: failed lookup: field `missing` did not exist in context")
}

func TestRenderRequiresVars(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"t.txt": "x"})
	_, err := execute(t, "render", filepath.Join(dir, "t.txt"))
	require.ErrorContains(t, err, "vars must set one of path, url")
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"t.txt":    "{{team.name}} {{league.title}}",
		"vars.csv": "$id,team,league\nr,x,y\n",
		"team.csv": "$id,name\nx,One\nx,Two\n",
	})
	args := []string{"check", filepath.Join(dir, "t.txt"),
		"--vars", filepath.Join(dir, "vars.csv"),
		"--table", filepath.Join(dir, "team.csv")}

	_, err := execute(t, args...)
	require.Error(t, err)
	require.Contains(t, err.Error(), `table "team" $id contains duplicate value: x`)
	require.Contains(t, err.Error(), `template reads table "league", which is not loaded`)

	writeFiles(t, dir, map[string]string{"t.txt": "{{team.name}}", "team.csv": "$id,name\nx,One\n"})
	out, err := execute(t, args...)
	require.NoError(t, err)
	require.Equal(t, "ok: 1 rows, 1 tables\n", out)
}

func TestTestCommand(t *testing.T) {
	out, err := execute(t, "test", filepath.Join("..", "..", "pkg", "casefile", "testdata"))
	require.NoError(t, err)
	require.Contains(t, out, "PASS")
	require.Contains(t, out, "cases passed")

	out, err = execute(t, "test", "--run", "syntax error", filepath.Join("..", "..", "pkg", "casefile", "testdata"))
	require.NoError(t, err)
	require.Contains(t, out, "1 cases passed")
}

func TestTestCommandReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"cases.yaml": "- name: wrong\n  template: 'a'\n  vars: \"$id\\nr\\n\"\n  output: b\n",
	})
	out, err := execute(t, "test", dir)
	require.ErrorContains(t, err, "1 of 1 cases failed")
	require.Contains(t, out, "FAIL")
	require.Contains(t, out, "output mismatch")
}

func TestTree(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"t.txt": "{@ for other t in team where size > 2 @}{{t.name}}{@ end for @}",
	})
	out, err := execute(t, "tree", "--selections", filepath.Join(dir, "t.txt"))
	require.NoError(t, err)
	require.Equal(t, "For(for other t in team where size > 2)\n"+
		"  Expand(t.name)\n"+
		"selection 1: other+where over team\n"+
		"table: team\n", out)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger("warn", "json", &buf)
	l.Info("hidden")
	l.Warn("shown", "k", 1)
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
}
