package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cusptools/cusp/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Show or change the daemon configuration",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := apiClient.GetConfig()
			if err != nil {
				return fmt.Errorf("failed to get config: %w", err)
			}

			str := func(p *string, def string) string {
				if p != nil {
					return *p
				}
				return def
			}

			cmd.Println(bold("Daemon configuration:"))
			cmd.Printf("  Potential library: %s\n", bold("%s", str(conf.PotentialDir, "/var/lib/cusp/potentials")))
			cmd.Printf("  Work directory: %s\n", bold("%s", str(conf.WorkDir, "/var/lib/cusp/jobs")))
			cmd.Printf("  VASP command: %s\n", bold("%s", str(conf.VaspCommand, "vasp_std")))
			cmd.Printf("  Custodian command: %s\n", bold("%s", str(conf.CustodianCommand, "cstdn")))
			if len(conf.MpirunCommand) > 0 {
				cmd.Printf("  MPI launcher: %s\n", bold("%v", conf.MpirunCommand))
			}
			withMPI := conf.WithMPI == nil || *conf.WithMPI
			cmd.Printf("  Run VASP under MPI: %s\n", bool2Text(withMPI))
			if conf.MPIProcs != nil && *conf.MPIProcs > 0 {
				cmd.Printf("  MPI processes: %s\n", bold("%d", *conf.MPIProcs))
			}
			allowNonRoot := conf.AllowNonRootAccess != nil && *conf.AllowNonRootAccess
			cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(allowNonRoot))
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set-vasp-command [command]",
			Short: "Set the VASP executable the daemon launches",
			RunE: func(_ *cobra.Command, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("invalid number of arguments")
				}

				ret, err := apiClient.SetVaspCommand(args[0])
				if err != nil {
					return fmt.Errorf("failed to set vasp command: %v", err)
				}

				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}

				return nil
			},
		},
		newEnableDisableCommand(
			"mpi", "running VASP under the MPI launcher",
			func() (string, error) { return apiClient.SetWithMPI(true) },
			func() (string, error) { return apiClient.SetWithMPI(false) },
		),
		&cobra.Command{
			Use:   "set-mpi-procs [count]",
			Short: "Set the number of MPI processes (0 leaves it to the launcher)",
			RunE: func(_ *cobra.Command, args []string) error {
				n, err := parseIntArg(args, "count")
				if err != nil {
					return err
				}

				ret, err := apiClient.SetMPIProcs(n)
				if err != nil {
					return fmt.Errorf("failed to set mpi process count: %v", err)
				}

				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}

				logrus.Infof("successfully set mpi process count to %d", n)

				return nil
			},
		},
	)

	return cmd
}
