package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/neurodesk/popvars/pkg/casefile"
	"github.com/spf13/cobra"
)

var (
	passLabel = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel = color.New(color.FgRed, color.Bold).SprintFunc()
)

func newTestCmd() *cobra.Command {
	var run []string
	cmd := &cobra.Command{
		Use:   "test [file or dir ...]",
		Short: "Run YAML template test cases",
		Long: `Run YAML template test cases. Each file holds a list of cases with a
template, CSV tables and the expected output or error. Directories contribute
their *.yaml and *.yml files. With no arguments ./testdata is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"testdata"}
			}
			files, err := casefile.LoadAll(args...)
			if err != nil {
				return err
			}
			files = casefile.Filter(files, normaliseNames(run)...)
			if len(files) == 0 {
				return fmt.Errorf("no test cases matched")
			}
			return runCases(cmd.OutOrStdout(), files)
		},
	}
	cmd.Flags().StringSliceVar(&run, "run", nil, "Only run cases with these names (comma separated)")
	return cmd
}

func normaliseNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func runCases(w io.Writer, files []casefile.File) error {
	var total, failed int
	for _, f := range files {
		for _, c := range f.Cases {
			total++
			res := c.Run()
			if res.Passed() {
				fmt.Fprintf(w, "%s %s: %s\n", passLabel("PASS"), f.Path, c.Name)
				continue
			}
			failed++
			fmt.Fprintf(w, "%s %s: %s\n", failLabel("FAIL"), f.Path, c.Name)
			for _, line := range strings.Split(strings.TrimRight(res.Failure, "\n"), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cases failed", failed, total)
	}
	fmt.Fprintf(w, "%d cases passed\n", total)
	return nil
}
