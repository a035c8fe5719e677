package popvars

import (
	"errors"
	"fmt"
	"io/fs"
)

// Loader fetches template source by name.
type Loader interface {
	Load(name string) (string, error)
}

type MemoryLoader map[string]string

func (m MemoryLoader) Load(name string) (string, error) {
	if s, ok := m[name]; ok {
		return s, nil
	}
	return "", ErrTemplateNotFound{name}
}

// FSLoader reads templates from a file system, e.g. os.DirFS(dir).
type FSLoader struct {
	FS fs.FS
}

func (l FSLoader) Load(name string) (string, error) {
	b, err := fs.ReadFile(l.FS, name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrTemplateNotFound{name}
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LoadTemplate loads and compiles a template.
func LoadTemplate(l Loader, name string) (*Template, error) {
	src, err := l.Load(name)
	if err != nil {
		return nil, err
	}
	t, err := Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

type ErrTemplateNotFound struct{ Name string }

func (e ErrTemplateNotFound) Error() string { return "template not found: " + e.Name }
