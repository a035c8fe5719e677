package main

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/neurodesk/popvars/pkg/project"
	"github.com/spf13/cobra"
)

func newRenderCmd(opts *globalOptions) *cobra.Command {
	src := &sourceOptions{}
	cmd := &cobra.Command{
		Use:   "render [template]",
		Short: "Render the template once per row of the driving table",
		Long: `Render the template once per row of the driving table.

Without --out every output is written to stdout, separated by output.separator.
With --out each output goes to its own file: the row's $outfile field, else
output.name rendered for the row, else <row>.txt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(opts)
			if err != nil {
				return err
			}
			if err := applySources(cmd, p, src, args); err != nil {
				return err
			}
			return render(cmd, p)
		},
	}
	src.register(cmd)
	cmd.Flags().StringVarP(&src.out, "out", "o", "", "Directory to write one file per row into")
	cmd.Flags().IntVarP(&src.workers, "workers", "j", 0, "Rows rendered concurrently (0 means one per CPU)")
	return cmd
}

func render(cmd *cobra.Command, p *project.Project) error {
	start := time.Now()
	tpl, err := p.LoadTemplate()
	if err != nil {
		return fmt.Errorf("loading template: %w", err)
	}
	def, err := p.Definition(cmd.Context(), slog.Default())
	if err != nil {
		return err
	}

	workers := p.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	var outputs []string
	if workers == 1 {
		outputs, err = tpl.RenderAll(def)
	} else {
		outputs, err = tpl.RenderParallel(cmd.Context(), def, workers)
	}
	if err != nil {
		return err
	}

	written, err := p.Output.Write(cmd.OutOrStdout(), p.Resolve(p.Output.Dir), outputs, def)
	if err != nil {
		return err
	}
	slog.Info("rendered",
		"rows", len(outputs),
		"files", len(written),
		"workers", workers,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}
