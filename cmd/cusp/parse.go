package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cusptools/cusp/pkg/parser"
)

func NewParseCommand() *cobra.Command {
	var opts parser.Options

	cmd := &cobra.Command{
		Use:     "parse [run dir] [output dir]",
		Short:   "Retrieve the outputs of a run directory",
		GroupID: gJobs,
		Long: `Retrieve the outputs of a run directory without going through the
daemon. The matching output files are compressed into the output
directory and an outputs.json manifest is written next to them.

By default CONTCAR, vasprun.xml and OUTCAR are retrieved. POTCAR files
are never retrieved, their contents are subject to license terms.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("invalid number of arguments")
			}

			result, err := parser.Parse(args[0], args[1], opts)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LINKNAME\tKIND\tSOURCE\tARCHIVE")
			for _, out := range result.Outputs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", out.Linkname, out.Kind, out.Source, out.Archive)
			}
			return w.Flush()
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.ParseFiles, "parse-files", nil,
		"file names, glob patterns or output identifiers to retrieve (defaults to CONTCAR, vasprun.xml, OUTCAR)")
	f.BoolVar(&opts.FailOnMissingFiles, "fail-on-missing-files", false,
		"fail when no file matches the parse list")

	return cmd
}
