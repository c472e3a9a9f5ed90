package config

import "github.com/sirupsen/logrus"

// Config is the daemon configuration: where the potential library and the
// job working directories live and how the external executables are
// launched.
type Config interface {
	PotentialDir() string
	WorkDir() string
	VaspCommand() string
	CustodianCommand() string
	MpirunCommand() []string
	WithMPI() bool
	MPIProcs() int
	AllowNonRootAccess() bool

	SetVaspCommand(string)
	SetWithMPI(bool)
	SetMPIProcs(int)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error

	LogrusFields() logrus.Fields
}
