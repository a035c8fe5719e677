package project

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/neurodesk/popvars/pkg/derive"
	"github.com/neurodesk/popvars/pkg/netcache"
	"github.com/neurodesk/popvars/pkg/popvars"
	"github.com/neurodesk/popvars/pkg/table"
	v "github.com/neurodesk/popvars/pkg/validator"
	"go.yaml.in/yaml/v4"
	"golang.org/x/sync/errgroup"
)

// DefaultFile is the project file looked up when none is given.
const DefaultFile = "popvars.yaml"

const defaultCacheDir = ".popvars-cache"

// Source is one CSV table, read from a local path or a URL.
type Source struct {
	Name   string        `yaml:"name,omitempty"`
	Path   string        `yaml:"path,omitempty"`
	URL    string        `yaml:"url,omitempty"`
	Derive []derive.Rule `yaml:"derive,omitempty"`
}

func (s Source) Validate() error {
	fields := make([]string, len(s.Derive))
	for i, r := range s.Derive {
		fields[i] = r.Field
	}
	return v.All(
		v.ExactlyOne("table source", map[string]string{"path": s.Path, "url": s.URL}),
		v.HasNoMarkup(s.Name, "table name"),
		v.Each(s.Derive),
		v.NoDuplicates(fields, "derive fields"),
	)
}

// TableName is the explicit name, or the file prefix of the path or URL.
func (s Source) TableName() string {
	if s.Name != "" {
		return s.Name
	}
	if s.URL != "" {
		if u, err := url.Parse(s.URL); err == nil {
			return table.NameFromPath(path.Base(u.Path))
		}
	}
	return table.NameFromPath(s.Path)
}

// Project is a popvars.yaml file.
type Project struct {
	Template string   `yaml:"template"`
	Vars     Source   `yaml:"vars"`
	Tables   []Source `yaml:"tables,omitempty"`
	Output   Output   `yaml:"output,omitempty"`
	Workers  int      `yaml:"workers,omitempty"`
	CacheDir string   `yaml:"cache_dir,omitempty"`

	// dir is where relative paths are resolved from.
	dir string
}

// New returns an empty project whose relative paths resolve against dir.
func New(dir string) *Project {
	return &Project{dir: dir}
}

// Load reads and validates a project file.
func Load(file string) (*Project, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := Decode(f, filepath.Dir(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return p, nil
}

// Decode reads a project from r; relative paths resolve against dir.
func Decode(r io.Reader, dir string) (*Project, error) {
	p := New(dir)
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decoding project: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the parts of the project that are set. A project built up
// from command-line flags may still lack a template or vars.
func (p *Project) Validate() error {
	names := make([]string, len(p.Tables))
	for i, t := range p.Tables {
		names[i] = t.TableName()
	}
	var vars error
	if p.Vars.Path != "" || p.Vars.URL != "" || len(p.Vars.Derive) > 0 {
		if err := p.Vars.Validate(); err != nil {
			vars = fmt.Errorf("vars: %w", err)
		}
	}
	return v.All(
		vars,
		v.Map(p.Tables, func(s Source, desc string) error {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("%s: %w", desc, err)
			}
			return nil
		}, "tables"),
		v.NoDuplicates(names, "table names"),
		v.NotNegative(p.Workers, "workers"),
		p.Output.Validate(),
	)
}

// Complete checks that the project can be rendered.
func (p *Project) Complete() error {
	return v.All(
		v.NotEmpty(p.Template, "template"),
		v.ExactlyOne("vars", map[string]string{"path": p.Vars.Path, "url": p.Vars.URL}),
		p.Validate(),
	)
}

// Dir is the directory relative paths resolve against.
func (p *Project) Dir() string { return p.dir }

// Resolve makes a relative project path absolute against the project directory.
func (p *Project) Resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.dir, name)
}

// LoadTemplate reads and compiles the project's template.
func (p *Project) LoadTemplate() (*popvars.Template, error) {
	dir, name := filepath.Split(p.Resolve(p.Template))
	if dir == "" {
		dir = "."
	}
	return popvars.LoadTemplate(popvars.FSLoader{FS: os.DirFS(dir)}, name)
}

// Definition loads every table concurrently and applies derive rules.
// Remote tables go through a disk cache under CacheDir.
func (p *Project) Definition(ctx context.Context, logger *slog.Logger) (*table.Definition, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sources := append([]Source{p.Vars}, p.Tables...)
	names := make([]string, len(sources))
	names[0] = table.VarsName
	for i, s := range p.Tables {
		names[i+1] = s.TableName()
	}

	var cache *netcache.Cache
	for _, s := range sources {
		if s.URL != "" {
			dir := p.CacheDir
			if dir == "" {
				dir = defaultCacheDir
			}
			cache = netcache.New(p.Resolve(dir), logger)
			break
		}
	}

	tables := make([]*table.Table, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	for i, s := range sources {
		g.Go(func() error {
			t, err := p.loadSource(ctx, cache, names[i], s)
			if err != nil {
				return fmt.Errorf("loading table %q: %w", names[i], err)
			}
			if err := derive.NewEvaluator(logger).Apply(t, s.Derive); err != nil {
				return err
			}
			logger.Debug("loaded table", "table", t.Name, "records", t.Len())
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return table.NewDefinition(tables[0], tables[1:]...)
}

func (p *Project) loadSource(ctx context.Context, cache *netcache.Cache, name string, s Source) (*table.Table, error) {
	file := p.Resolve(s.Path)
	if s.URL != "" {
		local, _, err := cache.Get(ctx, s.URL)
		if err != nil {
			return nil, err
		}
		file = local
	}
	return table.LoadCSVFile(name, file)
}
