// Package calculation assembles VASP run directories from typed inputs:
// INCAR, KPOINTS, a structure (or a series of NEB images), per-element
// potential references and optional custodian wrapping or restart sources.
package calculation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cusptools/cusp/pkg/custodian"
	"github.com/cusptools/cusp/pkg/potcar"
	"github.com/cusptools/cusp/pkg/vasp"
)

const (
	// StdoutName and StderrName are the log files the calculation's stdout
	// and stderr are redirected to.
	StdoutName = "cusp.out"
	StderrName = "cusp.err"

	// NEBKeyPrefix prefixes the NEB image identifiers (node_00, node_01, ...).
	NEBKeyPrefix = "node_"
)

// NEBKeyPattern is the required format of NEB image identifiers.
var NEBKeyPattern = regexp.MustCompile(`^node_([0-9]{2})$`)

// CustodianInputs enables custodian wrapping for a calculation.
type CustodianInputs struct {
	// Options are forwarded to the spec file.
	Options custodian.Options `json:"options,omitempty" yaml:"options,omitempty"`
}

// RestartInputs restarts a calculation from a parent run directory.
type RestartInputs struct {
	// Folder is the parent calculation's run directory.
	Folder string `json:"folder" yaml:"folder"`
	// ContcarToPoscar controls whether the parent's CONTCAR replaces the
	// POSCAR of the restarted run. Nil means true.
	ContcarToPoscar *bool `json:"contcarToPoscar,omitempty" yaml:"contcarToPoscar,omitempty"`
}

func (r *RestartInputs) contcarToPoscar() bool {
	return r.ContcarToPoscar == nil || *r.ContcarToPoscar
}

// Inputs are the typed inputs of one VASP calculation. Poscar and NEBImages
// are mutually exclusive; for restarted calculations all file inputs are
// optional and Poscar/Potcar are forbidden.
type Inputs struct {
	Incar     vasp.Incar
	Kpoints   *vasp.Kpoints
	Poscar    *vasp.Poscar
	NEBImages map[string]*vasp.Poscar
	Potcar    map[string]potcar.Reference
	Custodian *CustodianInputs
	Restart   *RestartInputs
}

// IsNEB reports whether the inputs describe an NEB calculation.
func (in *Inputs) IsNEB() bool {
	return len(in.NEBImages) > 0
}

// Verify checks input completeness and consistency before any file is
// written.
func (in *Inputs) Verify() error {
	if in.Restart != nil {
		return in.verifyRestart()
	}
	if in.Poscar != nil && in.IsNEB() {
		return fmt.Errorf("poscar and neb images cannot be set at the same time")
	}
	if in.Poscar == nil && !in.IsNEB() {
		return fmt.Errorf("missing non-optional structure input (poscar or neb images)")
	}
	if in.IsNEB() {
		return in.verifyNEB()
	}
	return in.verifyRegular()
}

func (in *Inputs) verifyRegular() error {
	var missing []string
	if in.Incar == nil {
		missing = append(missing, "incar")
	}
	if in.Kpoints == nil {
		missing = append(missing, "kpoints")
	}
	if in.Poscar == nil {
		missing = append(missing, "poscar")
	}
	if len(in.Potcar) == 0 {
		missing = append(missing, "potcar")
	}
	if len(missing) > 0 {
		return fmt.Errorf("cannot set up the calculation, non-optional inputs are missing: %s",
			strings.Join(missing, ", "))
	}
	return nil
}

func (in *Inputs) verifyNEB() error {
	var missing []string
	if in.Incar == nil {
		missing = append(missing, "incar")
	}
	if in.Kpoints == nil {
		missing = append(missing, "kpoints")
	}
	if len(in.Potcar) == 0 {
		missing = append(missing, "potcar")
	}
	if len(missing) > 0 {
		return fmt.Errorf("cannot set up the NEB calculation, non-optional inputs are missing: %s",
			strings.Join(missing, ", "))
	}
	for key := range in.NEBImages {
		if !NEBKeyPattern.MatchString(key) {
			return fmt.Errorf("ill-formed NEB image identifier %q (expected %s[0-9][0-9])", key, NEBKeyPrefix)
		}
	}
	return nil
}

func (in *Inputs) verifyRestart() error {
	var forbidden []string
	if in.Poscar != nil || in.IsNEB() {
		forbidden = append(forbidden, "poscar")
	}
	if len(in.Potcar) > 0 {
		forbidden = append(forbidden, "potcar")
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("the following inputs are not allowed in a restarted calculation: %s",
			strings.Join(forbidden, ", "))
	}
	if in.Restart.Folder == "" {
		return fmt.Errorf("restart requires the parent run directory")
	}
	return nil
}

// nebImageKeys returns the image identifiers in ascending order.
func (in *Inputs) nebImageKeys() []string {
	keys := make([]string, 0, len(in.NEBImages))
	for key := range in.NEBImages {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// nebImageDir maps an image identifier (node_03) to its run subdirectory (03).
func nebImageDir(key string) string {
	return strings.TrimPrefix(key, NEBKeyPrefix)
}

// Calculation binds inputs to the potential library they resolve against.
type Calculation struct {
	Inputs Inputs
	store  *potcar.Store
}

// New validates the inputs and returns a calculation ready to be prepared.
func New(store *potcar.Store, inputs Inputs) (*Calculation, error) {
	if err := inputs.Verify(); err != nil {
		return nil, err
	}
	return &Calculation{Inputs: inputs, store: store}, nil
}
