package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/neurodesk/popvars/pkg/popvars"
	"github.com/spf13/cobra"
)

func newTreeCmd(opts *globalOptions) *cobra.Command {
	var selections bool
	cmd := &cobra.Command{
		Use:   "tree [template]",
		Short: "Print the parsed structure of a template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			} else {
				p, err := loadProject(opts)
				if err != nil {
					return err
				}
				if p.Template == "" {
					return fmt.Errorf("no template given and the project names none")
				}
				path = p.Resolve(p.Template)
			}

			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			tpl, err := popvars.Compile(string(src))
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, popvars.Pretty(tpl.Nodes()))
			if selections {
				for i, s := range tpl.Selections() {
					fmt.Fprintf(out, "selection %d: %s over %s\n", i+1, s.Kind(), s.Table)
				}
				for _, t := range tpl.Tables() {
					fmt.Fprintf(out, "table: %s\n", t)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&selections, "selections", false, "Also list the selection kind of every for block and the tables read")
	return cmd
}
