package main

import (
	"fmt"
	"log/slog"

	"github.com/neurodesk/popvars/pkg/validator"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	src := &sourceOptions{}
	cmd := &cobra.Command{
		Use:   "check [template]",
		Short: "Report every problem with the template and tables without rendering",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(opts)
			if err != nil {
				return err
			}
			if err := applySources(cmd, p, src, args); err != nil {
				return err
			}

			var errs []error
			tpl, err := p.LoadTemplate()
			if err != nil {
				errs = append(errs, fmt.Errorf("template: %w", err))
			}
			def, err := p.Definition(cmd.Context(), slog.Default())
			if err != nil {
				errs = append(errs, err)
			} else {
				errs = append(errs, def.Lint())
			}
			if tpl != nil && def != nil {
				for _, name := range tpl.Tables() {
					if _, ok := def.Table(name); !ok {
						errs = append(errs, fmt.Errorf("template reads table %q, which is not loaded", name))
					}
				}
			}
			if err := validator.Collect(errs...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d rows, %d tables\n", def.Vars.Len(), len(def.Tables))
			return nil
		},
	}
	src.register(cmd)
	return cmd
}
