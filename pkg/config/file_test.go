package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cusptools/cusp/pkg/utils/ptr"
)

func TestNewFileMissingFileUsesDefaults(t *testing.T) {
	conf, err := NewFile(filepath.Join(t.TempDir(), "cusp.json"))
	if err != nil {
		t.Fatalf("NewFile returned error: %v", err)
	}
	if conf.VaspCommand() != "vasp_std" {
		t.Errorf("VaspCommand = %s", conf.VaspCommand())
	}
	if conf.CustodianCommand() != "cstdn" {
		t.Errorf("CustodianCommand = %s", conf.CustodianCommand())
	}
	if !conf.WithMPI() || conf.MPIProcs() != 0 {
		t.Errorf("MPI defaults = (%v, %d)", conf.WithMPI(), conf.MPIProcs())
	}
	if conf.AllowNonRootAccess() {
		t.Errorf("non-root access enabled by default")
	}
}

func TestNewFileEmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cusp.json")
	if err := os.WriteFile(path, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	conf, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile returned error: %v", err)
	}
	if conf.WorkDir() != "/var/lib/cusp/jobs" {
		t.Errorf("WorkDir = %s", conf.WorkDir())
	}
}

func TestNewFileRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cusp.json")
	if err := os.WriteFile(path, []byte("{ nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(path); err == nil {
		t.Fatalf("NewFile accepted malformed JSON")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cusp.json")
	conf := NewFileFromConfig(&RawFileConfig{
		PotentialDir:  ptr.To("/srv/cusp/potentials"),
		MpirunCommand: []string{"srun", "--mpi=pmix"},
	}, path)
	conf.SetVaspCommand("vasp_gam")
	conf.SetWithMPI(false)
	conf.SetMPIProcs(16)
	if err := conf.Save(); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile returned error: %v", err)
	}
	if loaded.PotentialDir() != "/srv/cusp/potentials" {
		t.Errorf("PotentialDir = %s", loaded.PotentialDir())
	}
	if loaded.VaspCommand() != "vasp_gam" {
		t.Errorf("VaspCommand = %s", loaded.VaspCommand())
	}
	if loaded.WithMPI() || loaded.MPIProcs() != 16 {
		t.Errorf("MPI settings = (%v, %d)", loaded.WithMPI(), loaded.MPIProcs())
	}
	if cmd := loaded.MpirunCommand(); len(cmd) != 2 || cmd[0] != "srun" {
		t.Errorf("MpirunCommand = %v", cmd)
	}
	// settings never touched fall back to the defaults
	if loaded.WorkDir() != "/var/lib/cusp/jobs" {
		t.Errorf("WorkDir = %s", loaded.WorkDir())
	}
}

func TestNewRawFileConfigFromConfig(t *testing.T) {
	conf := NewFileFromConfig(nil, filepath.Join(t.TempDir(), "cusp.json"))
	raw, err := NewRawFileConfigFromConfig(conf)
	if err != nil {
		t.Fatalf("NewRawFileConfigFromConfig returned error: %v", err)
	}
	if raw.VaspCommand == nil || *raw.VaspCommand != "vasp_std" {
		t.Errorf("VaspCommand = %v", raw.VaspCommand)
	}

	if _, err := NewRawFileConfigFromConfig(nil); err == nil {
		t.Errorf("expected an error for a nil config")
	}
}
