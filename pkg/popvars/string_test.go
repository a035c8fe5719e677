package popvars

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/neurodesk/popvars/pkg/table"
)

func TestTemplateString(t *testing.T) {
	if err := TemplateString("{{$id}}.txt").Validate(); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}
	if err := TemplateString("{{$id.txt").Validate(); err == nil {
		t.Fatalf("invalid template accepted")
	}
	out, err := TemplateString("{{$id}}-{{name}}.txt").Render(table.Record{"$id": "7", "name": "ada"}, &table.Definition{})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "7-ada.txt" {
		t.Fatalf("got %q", out)
	}
}

func TestLoaders(t *testing.T) {
	mem := MemoryLoader{"a": "{{x}}"}
	if _, err := LoadTemplate(mem, "a"); err != nil {
		t.Fatalf("memory load: %v", err)
	}
	var nf ErrTemplateNotFound
	if _, err := mem.Load("b"); !errors.As(err, &nf) || nf.Name != "b" {
		t.Fatalf("got %v, want ErrTemplateNotFound", err)
	}

	fsl := FSLoader{FS: fstest.MapFS{
		"ok.txt":  {Data: []byte("hello {{name}}")},
		"bad.txt": {Data: []byte("{{")},
	}}
	if _, err := LoadTemplate(fsl, "ok.txt"); err != nil {
		t.Fatalf("fs load: %v", err)
	}
	if _, err := fsl.Load("missing.txt"); !errors.As(err, &nf) {
		t.Fatalf("got %v, want ErrTemplateNotFound", err)
	}
	var se *SyntaxError
	if _, err := LoadTemplate(fsl, "bad.txt"); !errors.As(err, &se) {
		t.Fatalf("got %v, want *SyntaxError", err)
	}
}
