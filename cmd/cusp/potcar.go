package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cusptools/cusp/pkg/potcar"
)

func NewPotcarCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "potcar",
		Short:   "Manage the pseudo-potential library",
		GroupID: gPotentials,
		Long: `Manage the pseudo-potential library.

Potentials are identified by name, functional and version. Their
copyrighted contents stay inside the library; calculations only carry
references.`,
	}

	cmd.AddCommand(
		newPotcarAddCommand(),
		newPotcarListCommand(),
		newPotcarShowCommand(),
	)

	return cmd
}

func newPotcarAddCommand() *cobra.Command {
	var (
		name       string
		functional string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "add [path]",
		Short: "Add potentials to the library",
		Long: `Add potentials to the library.

When path points to a single POTCAR file, its name and functional are
taken from the --name and --functional flags, or derived from the file's
location inside a potential library tree (.../potpaw_PBE/Si_sv/POTCAR).

When path points to a directory, it is searched recursively for POTCAR
files and every discovered potential is added. Files that are already
stored or fail to parse are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("invalid number of arguments")
			}
			path := args[0]

			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				record, err := apiClient.AddPotential(path, name, functional)
				if err != nil {
					return fmt.Errorf("failed to add potential: %w", err)
				}
				logrus.Infof("stored potential %s with UUID %s", record.Label(), record.UUID)
				return nil
			}

			scan, err := apiClient.ScanPotentialFamily(path)
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", path, err)
			}
			if len(scan.Pending) == 0 {
				cmd.Printf("No new potentials found under %s (%d already stored, %d skipped)\n",
					path, len(scan.Present), len(scan.Skipped))
				return nil
			}

			cmd.Printf("Found %d new potentials under %s:\n\n", len(scan.Pending), path)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tELEMENT\tFUNCTIONAL\tVERSION\tPATH")
			for _, p := range scan.Pending {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.Name, p.Element, p.Functional, p.Version, p.Path)
			}
			w.Flush()
			cmd.Println()

			if !yes && !confirm(fmt.Sprintf("Add these %d potentials to the library?", len(scan.Pending))) {
				cmd.Println("Aborted.")
				return nil
			}

			outcome, err := apiClient.AddPotentialFamily(path)
			if err != nil {
				return fmt.Errorf("failed to add potentials: %w", err)
			}

			cmd.Printf("Added %s potentials (%d already stored, %d skipped)\n",
				bold("%d", len(outcome.Added)), len(outcome.Present), len(outcome.Skipped))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "potential name (single file only, derived from the path when empty)")
	f.StringVar(&functional, "functional", "", "functional identifier (single file only, derived from the path when empty)")
	f.BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

func newPotcarListCommand() *cobra.Command {
	var filter potcar.Filter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored potentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := apiClient.ListPotentials(filter)
			if err != nil {
				return fmt.Errorf("failed to list potentials: %w", err)
			}
			if len(records) == 0 {
				cmd.Println("No potentials stored.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "UUID\tNAME\tELEMENT\tFUNCTIONAL\tVERSION\tADDED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.UUID, r.Name, r.Element, r.Functional, r.Version,
					r.AddedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&filter.Name, "name", "", "filter by potential name")
	f.StringVar(&filter.Element, "element", "", "filter by element symbol")
	f.StringVar(&filter.Functional, "functional", "", "filter by functional")
	f.IntVar(&filter.Version, "version", 0, "filter by version")

	return cmd
}

func newPotcarShowCommand() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "show [uuid]",
		Short: "Show a stored potential",
		Long: `Show the identifiers of a stored potential.

With --full the decompressed file contents are printed as well. Handle
them with care, pseudo-potential files are subject to license terms.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("invalid number of arguments")
			}

			record, err := apiClient.GetPotential(args[0])
			if err != nil {
				return fmt.Errorf("failed to get potential: %w", err)
			}

			cmd.Println(bold("Potential %s:", record.Label()))
			cmd.Printf("  UUID: %s\n", record.UUID)
			cmd.Printf("  Name: %s\n", record.Name)
			cmd.Printf("  Element: %s\n", record.Element)
			cmd.Printf("  Functional: %s\n", record.Functional)
			cmd.Printf("  Version: %d\n", record.Version)
			cmd.Printf("  Hash: %s\n", record.Hash)
			cmd.Printf("  Added: %s\n", record.AddedAt.Format("2006-01-02 15:04:05"))

			if full {
				contents, err := apiClient.GetPotentialContents(record.UUID)
				if err != nil {
					return fmt.Errorf("failed to get potential contents: %w", err)
				}
				cmd.Println()
				cmd.Print(contents)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "print the potential file contents as well")

	return cmd
}
