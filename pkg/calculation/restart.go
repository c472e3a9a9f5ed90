package calculation

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cusptools/cusp/pkg/custodian"
	"github.com/cusptools/cusp/pkg/vasp"
)

// restartExcludedFiles lists the files never copied from a parent run
// directory: run bookkeeping plus any input that is re-supplied to the
// restarted calculation.
func (c *Calculation) restartExcludedFiles() map[string]bool {
	excluded := map[string]bool{
		custodian.SpecFileName: true,
		custodian.RunLogName:   true,
		StdoutName:             true,
		StderrName:             true,
	}
	if c.Inputs.Incar != nil {
		excluded[vasp.IncarName] = true
	}
	if c.Inputs.Kpoints != nil {
		excluded[vasp.KpointsName] = true
	}
	if c.Inputs.Restart.contcarToPoscar() {
		excluded[vasp.PoscarName] = true
	}
	return excluded
}

// copyRestartFiles replicates the parent run directory into dir, excluding
// bookkeeping files and, when enabled, promoting each CONTCAR to POSCAR.
func (c *Calculation) copyRestartFiles(dir string) error {
	parent := c.Inputs.Restart.Folder
	info, err := os.Stat(parent)
	if err != nil {
		return pkgerrors.Wrapf(err, "cannot access the parent run directory %s", parent)
	}
	if !info.IsDir() {
		return pkgerrors.Errorf("parent run path %s is not a directory", parent)
	}

	excluded := c.restartExcludedFiles()
	promote := c.Inputs.Restart.contcarToPoscar()
	return filepath.WalkDir(parent, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if excluded[name] {
			logrus.Debugf("restart: skipping excluded file %s", path)
			return nil
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		if name == vasp.ContcarName && promote {
			rel = filepath.Join(filepath.Dir(rel), vasp.PoscarName)
		}
		target := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
