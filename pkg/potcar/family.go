package potcar

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cusptools/cusp/pkg/vasp"
)

// PathInfo is derived from a potential file's location inside a shipped
// potential library, whose layout is .../FUNCTIONAL_DIR/NAME/POTCAR.
type PathInfo struct {
	Name       string
	Functional string
}

// ParsePotentialPath derives the potential name and functional from the
// path of a POTCAR file inside a shipped library tree. The functional is
// identified by the closest ancestor directory matching one of the library
// archive names (potpaw_pbe, potpaw_lda.52, ...).
func ParsePotentialPath(path string) (*PathInfo, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(dir)
	if name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("potential path %q has no name folder", path)
	}
	for parent := filepath.Dir(dir); ; parent = filepath.Dir(parent) {
		base := strings.ToLower(filepath.Base(parent))
		if functional, ok := vasp.FunctionalMap[base]; ok {
			return &PathInfo{Name: name, Functional: functional}, nil
		}
		if parent == filepath.Dir(parent) {
			break
		}
	}
	return nil, fmt.Errorf("no functional folder found in potential path %q", path)
}

// FamilyResult summarizes a recursive family scan: potentials ready to be
// committed, files whose identifiers are already stored, and files skipped
// because they failed to parse.
type FamilyResult struct {
	Pending []*Pending `json:"pending,omitempty"`
	Present []string   `json:"present,omitempty"`
	Skipped []string   `json:"skipped,omitempty"`
}

// PrepareFamily recursively searches root for files named POTCAR and
// prepares every discovered potential. Files that fail to parse or that are
// already stored do not abort the scan; they are reported in the result.
func (s *Store) PrepareFamily(root string) (*FamilyResult, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == vasp.PotcarName {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &FamilyResult{}
	for _, path := range paths {
		info, err := ParsePotentialPath(path)
		if err != nil {
			logrus.Warnf("skipping %s: %v", path, err)
			result.Skipped = append(result.Skipped, path)
			continue
		}
		pending, err := s.Prepare(path, info.Name, info.Functional)
		switch {
		case err == nil:
			result.Pending = append(result.Pending, pending)
		case isAlreadyStored(err):
			result.Present = append(result.Present, path)
		default:
			logrus.Warnf("skipping %s due to a parsing error: %v", path, err)
			result.Skipped = append(result.Skipped, path)
		}
	}
	return result, nil
}

func isAlreadyStored(err error) bool {
	return errors.Is(err, ErrPotentialExists) || errors.Is(err, ErrPotentialConflict)
}

// FamilyOutcome summarizes a committed family scan.
type FamilyOutcome struct {
	Added   []Record `json:"added,omitempty"`
	Present []string `json:"present,omitempty"`
	Skipped []string `json:"skipped,omitempty"`
}

// CommitFamily commits every pending potential of a family scan. A commit
// failure on one file does not abort the rest; the file is reported as
// skipped instead.
func (s *Store) CommitFamily(res *FamilyResult) *FamilyOutcome {
	outcome := &FamilyOutcome{
		Present: res.Present,
		Skipped: res.Skipped,
	}
	for _, pending := range res.Pending {
		record, err := s.Commit(pending)
		if err != nil {
			if isAlreadyStored(err) {
				outcome.Present = append(outcome.Present, pending.Path)
				continue
			}
			logrus.Warnf("failed to store %s: %v", pending.Path, err)
			outcome.Skipped = append(outcome.Skipped, pending.Path)
			continue
		}
		outcome.Added = append(outcome.Added, *record)
	}
	return outcome
}
