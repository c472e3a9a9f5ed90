package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cusptools/cusp/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		PotentialDir:       ptr.To("/var/lib/cusp/potentials"),
		WorkDir:            ptr.To("/var/lib/cusp/jobs"),
		VaspCommand:        ptr.To("vasp_std"),
		CustodianCommand:   ptr.To("cstdn"),
		MpirunCommand:      []string{"mpirun"},
		WithMPI:            ptr.To(true),
		MPIProcs:           ptr.To(0),
		AllowNonRootAccess: ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = defaultFileConfig
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	PotentialDir     *string `json:"potentialDir,omitempty"`
	WorkDir          *string `json:"workDir,omitempty"`
	VaspCommand      *string `json:"vaspCommand,omitempty"`
	CustodianCommand *string `json:"custodianCommand,omitempty"`
	// MpirunCommand is the MPI launcher prefix, e.g. ["mpirun"] or
	// ["srun", "--mpi=pmix"].
	MpirunCommand      []string `json:"mpirunCommand,omitempty"`
	WithMPI            *bool    `json:"withMpi,omitempty"`
	MPIProcs           *int     `json:"mpiProcs,omitempty"`
	AllowNonRootAccess *bool    `json:"allowNonRootAccess,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		PotentialDir:       ptr.To(c.PotentialDir()),
		WorkDir:            ptr.To(c.WorkDir()),
		VaspCommand:        ptr.To(c.VaspCommand()),
		CustodianCommand:   ptr.To(c.CustodianCommand()),
		MpirunCommand:      c.MpirunCommand(),
		WithMPI:            ptr.To(c.WithMPI()),
		MPIProcs:           ptr.To(c.MPIProcs()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

func (f *File) PotentialDir() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.PotentialDir != nil {
		return *f.c.PotentialDir
	}
	return *defaultFileConfig.PotentialDir
}

func (f *File) WorkDir() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.WorkDir != nil {
		return *f.c.WorkDir
	}
	return *defaultFileConfig.WorkDir
}

func (f *File) VaspCommand() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.VaspCommand != nil {
		return *f.c.VaspCommand
	}
	return *defaultFileConfig.VaspCommand
}

func (f *File) CustodianCommand() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.CustodianCommand != nil {
		return *f.c.CustodianCommand
	}
	return *defaultFileConfig.CustodianCommand
}

func (f *File) MpirunCommand() []string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.MpirunCommand != nil {
		return f.c.MpirunCommand
	}
	return defaultFileConfig.MpirunCommand
}

func (f *File) WithMPI() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.WithMPI != nil {
		return *f.c.WithMPI
	}
	return *defaultFileConfig.WithMPI
}

func (f *File) MPIProcs() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.MPIProcs != nil {
		return *f.c.MPIProcs
	}
	return *defaultFileConfig.MPIProcs
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AllowNonRootAccess != nil {
		return *f.c.AllowNonRootAccess
	}
	return *defaultFileConfig.AllowNonRootAccess
}

func (f *File) SetVaspCommand(cmd string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.VaspCommand = &cmd
}

func (f *File) SetWithMPI(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.WithMPI = &b
}

func (f *File) SetMPIProcs(n int) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.MPIProcs = &n
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}
	configString := string(b)

	if strings.TrimSpace(configString) == "" {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"potentialDir":       f.PotentialDir(),
		"workDir":            f.WorkDir(),
		"vaspCommand":        f.VaspCommand(),
		"custodianCommand":   f.CustodianCommand(),
		"withMpi":            f.WithMPI(),
		"mpiProcs":           f.MPIProcs(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
	}
}
