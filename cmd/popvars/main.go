package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/neurodesk/popvars/pkg/project"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	config    string
	verbose   bool
	logLevel  string
	logFormat string
}

// sourceOptions are the flags that override the project's inputs.
type sourceOptions struct {
	vars    string
	tables  []string
	out     string
	workers int
}

func (o *sourceOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.vars, "vars", "", "CSV file holding the driving table")
	cmd.Flags().StringArrayVarP(&o.tables, "table", "t", nil, "CSV file holding a lookup table named after its file prefix (repeatable)")
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "popvars",
		Short:         "Render one text output per row of a CSV table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := opts.logLevel
			if opts.verbose {
				level = "debug"
				os.Setenv("POPVARS_VERBOSE", "1")
			}
			slog.SetDefault(newLogger(level, opts.logFormat, cmd.ErrOrStderr()))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.config, "config", "", "Path to the project file (default "+project.DefaultFile+" if present)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(
		newRenderCmd(opts),
		newCheckCmd(opts),
		newTestCmd(),
		newTreeCmd(opts),
	)
	return root
}

// loadProject reads the configured project file, or the default one when it
// exists. Without either an empty project rooted at the working directory
// is returned, to be filled from flags.
func loadProject(opts *globalOptions) (*project.Project, error) {
	if opts.config != "" {
		p, err := project.Load(opts.config)
		if err != nil {
			return nil, fmt.Errorf("loading project: %w", err)
		}
		return p, nil
	}
	p, err := project.Load(project.DefaultFile)
	switch {
	case err == nil:
		slog.Debug("using project file", "path", project.DefaultFile)
		return p, nil
	case errors.Is(err, fs.ErrNotExist):
		return project.New("."), nil
	}
	return nil, fmt.Errorf("loading project: %w", err)
}

// applySources overrides the project with command-line inputs. Paths given
// on the command line are relative to the working directory.
func applySources(cmd *cobra.Command, p *project.Project, src *sourceOptions, args []string) error {
	abs := func(path string) (string, error) {
		a, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", path, err)
		}
		return a, nil
	}
	if len(args) > 0 {
		tpl, err := abs(args[0])
		if err != nil {
			return err
		}
		p.Template = tpl
	}
	if src.vars != "" {
		vars, err := abs(src.vars)
		if err != nil {
			return err
		}
		p.Vars = project.Source{Path: vars}
	}
	for _, t := range src.tables {
		path, err := abs(t)
		if err != nil {
			return err
		}
		p.Tables = append(p.Tables, project.Source{Path: path})
	}
	if src.out != "" {
		out, err := abs(src.out)
		if err != nil {
			return err
		}
		p.Output.Dir = out
	}
	if cmd.Flags().Changed("workers") {
		p.Workers = src.workers
	}
	return p.Complete()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
