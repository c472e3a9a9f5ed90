package calculation

import (
	"fmt"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cusptools/cusp/pkg/custodian"
	"github.com/cusptools/cusp/pkg/vasp"
)

// Prepare writes every input file of the calculation to dir. vaspCmd is the
// fully assembled VASP command line (including any MPI launcher); it is only
// needed for the custodian spec and may be nil when no custodian is
// configured.
func (c *Calculation) Prepare(dir string, vaspCmd []string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if c.Inputs.Restart != nil {
		return c.prepareRestart(dir, vaspCmd)
	}
	if c.Inputs.IsNEB() {
		return c.prepareNEB(dir, vaspCmd)
	}
	return c.prepareRegular(dir, vaspCmd)
}

func (c *Calculation) prepareRegular(dir string, vaspCmd []string) error {
	if err := c.writeIncar(dir); err != nil {
		return err
	}
	if err := c.writePoscar(dir, c.Inputs.Poscar); err != nil {
		return err
	}
	if err := c.writePotcar(dir, c.Inputs.Poscar); err != nil {
		return err
	}
	if err := c.writeKpoints(dir); err != nil {
		return err
	}
	return c.writeCustodianSpec(dir, vaspCmd)
}

func (c *Calculation) prepareNEB(dir string, vaspCmd []string) error {
	if err := c.writeIncar(dir); err != nil {
		return err
	}
	if err := c.writeKpoints(dir); err != nil {
		return err
	}
	keys := c.Inputs.nebImageKeys()
	for _, key := range keys {
		imageDir := filepath.Join(dir, nebImageDir(key))
		if err := os.MkdirAll(imageDir, 0755); err != nil {
			return err
		}
		if err := c.writePoscar(imageDir, c.Inputs.NEBImages[key]); err != nil {
			return pkgerrors.Wrapf(err, "failed to write NEB image %s", key)
		}
	}
	// the POTCAR is shared by all images and ordered by the first one
	if err := c.writePotcar(dir, c.Inputs.NEBImages[keys[0]]); err != nil {
		return err
	}
	return c.writeCustodianSpec(dir, vaspCmd)
}

// prepareRestart copies the parent run directory and writes any re-supplied
// inputs on top of it.
func (c *Calculation) prepareRestart(dir string, vaspCmd []string) error {
	if err := c.copyRestartFiles(dir); err != nil {
		return err
	}
	if c.Inputs.Incar != nil {
		if err := c.writeIncar(dir); err != nil {
			return err
		}
	}
	if c.Inputs.Kpoints != nil {
		if err := c.writeKpoints(dir); err != nil {
			return err
		}
	}
	return c.writeCustodianSpec(dir, vaspCmd)
}

func (c *Calculation) writeIncar(dir string) error {
	return c.Inputs.Incar.WriteFile(filepath.Join(dir, vasp.IncarName))
}

func (c *Calculation) writeKpoints(dir string) error {
	return c.Inputs.Kpoints.WriteFile(filepath.Join(dir, vasp.KpointsName))
}

func (c *Calculation) writePoscar(dir string, poscar *vasp.Poscar) error {
	return poscar.WriteFile(filepath.Join(dir, vasp.PoscarName))
}

func (c *Calculation) writePotcar(dir string, poscar *vasp.Poscar) error {
	contents, err := c.store.AssemblePotcar(poscar, c.Inputs.Potcar)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to assemble the POTCAR")
	}
	return os.WriteFile(filepath.Join(dir, vasp.PotcarName), contents, 0644)
}

// writeCustodianSpec writes the custodian input file when a custodian
// command is configured; plain VASP runs get no spec file.
func (c *Calculation) writeCustodianSpec(dir string, vaspCmd []string) error {
	if c.Inputs.Custodian == nil {
		return nil
	}
	if len(vaspCmd) == 0 {
		return fmt.Errorf("custodian wrapping requires the VASP command line")
	}
	settings, err := custodian.NewSettings(vaspCmd, StdoutName, StderrName,
		c.Inputs.Custodian.Options, c.Inputs.IsNEB())
	if err != nil {
		return err
	}
	specPath := filepath.Join(dir, custodian.SpecFileName)
	logrus.Debugf("writing custodian spec to %s", specPath)
	return settings.WriteSpec(specPath)
}
