package vasp

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// GenerationStyle is the k-point grid generation style written to the
// KPOINTS file header.
type GenerationStyle string

const (
	StyleAutomatic GenerationStyle = "Automatic"
	StyleGamma     GenerationStyle = "Gamma"
	StyleMonkhorst GenerationStyle = "Monkhorst"
	StyleLineMode  GenerationStyle = "Line_mode"
)

// PathPoint is one node of a high-symmetry path through the Brillouin zone.
type PathPoint struct {
	Label  string     `json:"label" yaml:"label"`
	Coords [3]float64 `json:"coords" yaml:"coords"`
}

// Kpoints represents the contents of a VASP KPOINTS file.
type Kpoints struct {
	Comment string
	Style   GenerationStyle
	// Subdivisions is the grid length parameter of the fully automatic mode.
	Subdivisions int
	// Grid and Shift define Gamma and Monkhorst grids.
	Grid  [3]int
	Shift [3]float64
	// Divisions and Path define line-mode k-point lists. Path holds the
	// segment endpoints pairwise: a path Gamma-X-M is given as
	// [Gamma, X, X, M].
	Divisions int
	Path      []PathPoint
}

// AutomaticKpoints builds a fully automatic grid with the given length
// subdivision parameter.
func AutomaticKpoints(subdivisions int) *Kpoints {
	return &Kpoints{
		Comment:      "Automatic mesh",
		Style:        StyleAutomatic,
		Subdivisions: subdivisions,
	}
}

// GammaKpoints builds a Gamma-centered grid with explicit subdivisions.
func GammaKpoints(grid [3]int, shift [3]float64) *Kpoints {
	return &Kpoints{
		Comment: "Automatic Kpoint Scheme",
		Style:   StyleGamma,
		Grid:    grid,
		Shift:   shift,
	}
}

// MonkhorstKpoints builds a Monkhorst-Pack grid with explicit subdivisions.
func MonkhorstKpoints(grid [3]int, shift [3]float64) *Kpoints {
	return &Kpoints{
		Comment: "Automatic Kpoint Scheme",
		Style:   StyleMonkhorst,
		Grid:    grid,
		Shift:   shift,
	}
}

// DensityKpoints derives a grid from a k-point density given in k-points per
// reciprocal atom. Gamma-centered grids are used when the resulting grid has
// odd subdivisions or when forceGamma is set, Monkhorst-Pack grids otherwise.
func DensityKpoints(structure Structure, kppa float64, forceGamma bool) (*Kpoints, error) {
	n := len(structure.Sites)
	if n == 0 {
		return nil, fmt.Errorf("cannot derive a k-point grid for a structure without sites")
	}
	if kppa <= 0 {
		return nil, fmt.Errorf("k-point density must be positive, got %g", kppa)
	}
	lengths := [3]float64{}
	for i := 0; i < 3; i++ {
		row := structure.Lattice[i]
		lengths[i] = math.Sqrt(row[0]*row[0] + row[1]*row[1] + row[2]*row[2])
		if lengths[i] == 0 {
			return nil, fmt.Errorf("degenerate lattice vector %d", i+1)
		}
	}
	perAtom := kppa / float64(n)
	mult := math.Cbrt(perAtom * lengths[0] * lengths[1] * lengths[2])
	var grid [3]int
	hasOdd := false
	for i := 0; i < 3; i++ {
		grid[i] = int(math.Round(mult / lengths[i]))
		if grid[i] < 1 {
			grid[i] = 1
		}
		if grid[i]%2 == 1 {
			hasOdd = true
		}
	}
	if forceGamma || hasOdd {
		return GammaKpoints(grid, [3]float64{}), nil
	}
	return MonkhorstKpoints(grid, [3]float64{}), nil
}

// LineModeKpoints builds a line-mode k-point list with the given number of
// subdivisions between the path nodes. Path holds the segment endpoints
// pairwise and must contain an even, non-zero number of points.
func LineModeKpoints(divisions int, path []PathPoint) (*Kpoints, error) {
	if divisions < 1 {
		return nil, fmt.Errorf("line-mode divisions must be positive, got %d", divisions)
	}
	if len(path) == 0 || len(path)%2 != 0 {
		return nil, fmt.Errorf("line-mode path must hold segment endpoints pairwise, got %d points", len(path))
	}
	return &Kpoints{
		Comment:   "Line_mode KPOINTS file",
		Style:     StyleLineMode,
		Divisions: divisions,
		Path:      path,
	}, nil
}

// KpointsOptions is the declarative k-point grid description accepted by
// calculation input files. Exactly one of Grid, Subdivisions or Density has
// to be set, depending on the mode.
type KpointsOptions struct {
	// Mode is one of auto, gamma, monkhorst or line.
	Mode string `json:"mode" yaml:"mode"`
	// Subdivisions is the length parameter (auto) or the number of points
	// per path segment (line).
	Subdivisions int `json:"subdivisions,omitempty" yaml:"subdivisions,omitempty"`
	// Grid holds the explicit subdivisions for gamma and monkhorst grids.
	Grid []int `json:"grid,omitempty" yaml:"grid,omitempty"`
	// Density selects density-based initialization for gamma and monkhorst
	// grids; it requires a structure.
	Density float64 `json:"density,omitempty" yaml:"density,omitempty"`
	// Shift is the optional grid shift for explicit grids.
	Shift []float64 `json:"shift,omitempty" yaml:"shift,omitempty"`
	// Path holds the high-symmetry path endpoints for line mode, pairwise.
	Path []PathPoint `json:"path,omitempty" yaml:"path,omitempty"`
}

// NewKpoints builds a Kpoints object from declarative options. structure may
// be nil unless a density-based mode is requested.
func NewKpoints(opts KpointsOptions, structure *Poscar) (*Kpoints, error) {
	shift := [3]float64{}
	if opts.Shift != nil {
		if len(opts.Shift) != 3 {
			return nil, fmt.Errorf("expected 3 values for the k-point grid shift, got %d", len(opts.Shift))
		}
		copy(shift[:], opts.Shift)
	}
	switch opts.Mode {
	case "auto":
		if opts.Subdivisions < 1 {
			return nil, fmt.Errorf("automatic mode requires positive subdivisions")
		}
		return AutomaticKpoints(opts.Subdivisions), nil
	case "gamma", "monkhorst":
		if opts.Grid != nil {
			if len(opts.Grid) != 3 {
				return nil, fmt.Errorf("expected 3 values for an explicit k-point grid, got %d", len(opts.Grid))
			}
			grid := [3]int{opts.Grid[0], opts.Grid[1], opts.Grid[2]}
			if opts.Mode == "gamma" {
				return GammaKpoints(grid, shift), nil
			}
			return MonkhorstKpoints(grid, shift), nil
		}
		if opts.Density > 0 {
			if structure == nil {
				return nil, fmt.Errorf("density-based k-point initialization requires a structure")
			}
			return DensityKpoints(structure.Structure(), opts.Density, opts.Mode == "gamma")
		}
		return nil, fmt.Errorf("mode %q requires either a grid or a density", opts.Mode)
	case "line":
		if len(opts.Path) == 0 {
			return nil, fmt.Errorf("line mode requires a high-symmetry path")
		}
		return LineModeKpoints(opts.Subdivisions, opts.Path)
	case "":
		return nil, fmt.Errorf("missing non-optional k-point parameter mode")
	default:
		return nil, fmt.Errorf("unknown k-point mode %q (allowed: auto, gamma, monkhorst, line)", opts.Mode)
	}
}

// Description returns a short human readable summary of the grid, used by
// job listings.
func (k *Kpoints) Description() string {
	switch k.Style {
	case StyleAutomatic:
		return fmt.Sprintf("Automatic (Subdivisions: %d)", k.Subdivisions)
	case StyleLineMode:
		return "Line-mode"
	default:
		return fmt.Sprintf("%s (%dx%dx%d)", k.Style, k.Grid[0], k.Grid[1], k.Grid[2])
	}
}

// String renders the KPOINTS file contents.
func (k *Kpoints) String() string {
	var sb strings.Builder
	fmt.Fprintln(&sb, k.Comment)
	switch k.Style {
	case StyleAutomatic:
		fmt.Fprintln(&sb, "0")
		fmt.Fprintln(&sb, "Auto")
		fmt.Fprintf(&sb, "  %d\n", k.Subdivisions)
	case StyleLineMode:
		fmt.Fprintf(&sb, "%d\n", k.Divisions)
		fmt.Fprintln(&sb, "Line_mode")
		fmt.Fprintln(&sb, "Reciprocal")
		for i := 0; i < len(k.Path); i += 2 {
			a, b := k.Path[i], k.Path[i+1]
			fmt.Fprintf(&sb, "%.4f %.4f %.4f ! %s\n", a.Coords[0], a.Coords[1], a.Coords[2], a.Label)
			fmt.Fprintf(&sb, "%.4f %.4f %.4f ! %s\n", b.Coords[0], b.Coords[1], b.Coords[2], b.Label)
			if i+2 < len(k.Path) {
				fmt.Fprintln(&sb)
			}
		}
	default:
		fmt.Fprintln(&sb, "0")
		fmt.Fprintln(&sb, string(k.Style))
		fmt.Fprintf(&sb, "%d %d %d\n", k.Grid[0], k.Grid[1], k.Grid[2])
		fmt.Fprintf(&sb, "%.1f %.1f %.1f\n", k.Shift[0], k.Shift[1], k.Shift[2])
	}
	return sb.String()
}

// Write writes the KPOINTS file contents to w.
func (k *Kpoints) Write(w io.Writer) error {
	_, err := io.WriteString(w, k.String())
	return err
}

// WriteFile writes the KPOINTS file to the given path.
func (k *Kpoints) WriteFile(path string) error {
	return os.WriteFile(path, []byte(k.String()), 0644)
}
