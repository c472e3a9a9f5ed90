package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cusptools/cusp/pkg/calculation"
	"github.com/cusptools/cusp/pkg/custodian"
	"github.com/cusptools/cusp/pkg/parser"
	"github.com/cusptools/cusp/pkg/runner"
	"github.com/cusptools/cusp/pkg/vasp"
)

// jobFile is the YAML submission file accepted by "cusp job submit".
// INCAR and structure inputs are given as paths to the actual VASP files
// and parsed client-side; everything else is declarative.
type jobFile struct {
	Name      string                     `yaml:"name,omitempty"`
	Incar     string                     `yaml:"incar,omitempty"`
	Incars    []string                   `yaml:"incars,omitempty"`
	Poscar    string                     `yaml:"poscar,omitempty"`
	NEBImages map[string]string          `yaml:"nebImages,omitempty"`
	Kpoints   *vasp.KpointsOptions       `yaml:"kpoints,omitempty"`
	Potcar    *runner.PotcarSpec         `yaml:"potcar,omitempty"`
	Custodian *jobFileCustodian          `yaml:"custodian,omitempty"`
	Restart   *calculation.RestartInputs `yaml:"restart,omitempty"`
	Parser    parser.Options             `yaml:"parser,omitempty"`
}

// jobFileCustodian accepts handlers either as a bare name list (handler
// defaults) or as a name-to-parameters map.
type jobFileCustodian struct {
	HandlerNames []string                          `yaml:"handlerNames,omitempty"`
	Handlers     map[string]map[string]interface{} `yaml:"handlers,omitempty"`
	Settings     map[string]interface{}            `yaml:"settings,omitempty"`
}

func loadJobFile(path string) (*runner.JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file jobFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse job file %s: %w", path, err)
	}

	spec := &runner.JobSpec{
		Name:    file.Name,
		Kpoints: file.Kpoints,
		Potcar:  file.Potcar,
		Restart: file.Restart,
		Parser:  file.Parser,
	}

	if file.Incar != "" {
		incar, err := vasp.ParseIncarFile(file.Incar)
		if err != nil {
			return nil, err
		}
		spec.Incar = incar
	}
	for _, path := range file.Incars {
		incar, err := vasp.ParseIncarFile(path)
		if err != nil {
			return nil, err
		}
		spec.Incars = append(spec.Incars, incar)
	}
	if file.Poscar != "" {
		poscar, err := vasp.ParsePoscarFile(file.Poscar)
		if err != nil {
			return nil, err
		}
		spec.Poscar = poscar
	}
	for key, path := range file.NEBImages {
		poscar, err := vasp.ParsePoscarFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse NEB image %s: %w", key, err)
		}
		if spec.NEBImages == nil {
			spec.NEBImages = make(map[string]*vasp.Poscar, len(file.NEBImages))
		}
		spec.NEBImages[key] = poscar
	}

	if file.Custodian != nil {
		handlers := file.Custodian.Handlers
		if handlers == nil {
			handlers = custodian.HandlersFromNames(file.Custodian.HandlerNames)
		} else if len(file.Custodian.HandlerNames) > 0 {
			return nil, fmt.Errorf("handlers and handlerNames are mutually exclusive")
		}
		spec.Custodian = &custodian.Options{
			Settings: file.Custodian.Settings,
			Handlers: handlers,
		}
	}

	return spec, nil
}

func NewJobCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "job",
		Short:   "Submit and inspect calculations",
		GroupID: gJobs,
	}

	cmd.AddCommand(
		newJobSubmitCommand(),
		newJobListCommand(),
		newJobStatusCommand(),
		newJobOutputsCommand(),
	)

	return cmd
}

func newJobSubmitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "submit [job file]",
		Short: "Submit a calculation from a YAML job file",
		Long: `Submit a calculation from a YAML job file.

The file names the INCAR and structure inputs by path, selects the
k-point grid and the pseudo-potentials and optionally enables custodian
wrapping or a restart:

  name: si-relax
  incar: ./INCAR
  poscar: ./POSCAR
  kpoints:
    mode: gamma
    grid: [4, 4, 4]
  potcar:
    functional: pbe
    names: [Si_sv]
  custodian:
    handlerNames: [VaspErrorHandler]

A multi-relax run lists its INCAR files in order instead; every stage
after the first restarts from the previous one with CONTCAR promoted to
POSCAR and only the INCAR replaced:

  incars: [./INCAR.coarse, ./INCAR.fine]`,
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("invalid number of arguments")
			}

			spec, err := loadJobFile(args[0])
			if err != nil {
				return err
			}

			job, err := apiClient.SubmitJob(*spec)
			if err != nil {
				return fmt.Errorf("failed to submit job: %w", err)
			}

			logrus.WithFields(logrus.Fields{
				"id":  job.ID,
				"dir": job.Dir,
			}).Infof("job submitted")

			return nil
		},
	}
}

func newJobListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List submitted jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := apiClient.ListJobs()
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}
			if len(jobs) == 0 {
				cmd.Println("No jobs submitted.")
				return nil
			}

			runner.SortJobsBySubmission(jobs)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATE\tSUBMITTED\tEXIT")
			for _, j := range jobs {
				exit := "-"
				if j.State == runner.StateFinished || j.State == runner.StateFailed {
					exit = fmt.Sprintf("%d", j.ExitCode)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					j.ID, j.Name, j.State, j.SubmittedAt.Format(time.DateTime), exit)
			}
			return w.Flush()
		},
	}
}

func newJobStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [id]",
		Short: "Show the state of a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("invalid number of arguments")
			}

			job, err := apiClient.GetJob(args[0])
			if err != nil {
				return fmt.Errorf("failed to get job: %w", err)
			}

			cmd.Println(bold("Job %s:", job.ID))
			if job.Name != "" {
				cmd.Printf("  Name: %s\n", job.Name)
			}
			cmd.Printf("  State: %s\n", bold("%s", job.State))
			cmd.Printf("  Directory: %s\n", job.Dir)
			cmd.Printf("  Custodian: %s\n", bool2Text(job.Custodian))
			if job.Stages > 0 {
				cmd.Printf("  Stage: %d/%d\n", job.Stage, job.Stages)
			}
			cmd.Printf("  Submitted: %s\n", job.SubmittedAt.Format(time.DateTime))
			if !job.StartedAt.IsZero() {
				cmd.Printf("  Started: %s\n", job.StartedAt.Format(time.DateTime))
			}
			if !job.EndedAt.IsZero() {
				cmd.Printf("  Ended: %s\n", job.EndedAt.Format(time.DateTime))
				cmd.Printf("  Exit code: %d\n", job.ExitCode)
			}
			if job.Error != "" {
				cmd.Printf("  Error: %s\n", job.Error)
			}
			return nil
		},
	}
}

func newJobOutputsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "outputs [id]",
		Short: "List the retrieved outputs of a finished job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("invalid number of arguments")
			}

			result, err := apiClient.GetJobOutputs(args[0])
			if err != nil {
				return fmt.Errorf("failed to get job outputs: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LINKNAME\tKIND\tSOURCE\tARCHIVE")
			for _, out := range result.Outputs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", out.Linkname, out.Kind, out.Source, out.Archive)
			}
			return w.Flush()
		},
	}
}
