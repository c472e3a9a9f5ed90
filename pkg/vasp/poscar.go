package vasp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
)

// boltzmannEV is the Boltzmann constant in eV/K.
const boltzmannEV = 8.617333262e-5

// amuAngPerFsSqToEV converts amu*(Angstrom/fs)^2 to eV.
const amuAngPerFsSqToEV = 103.642696

// Site is a single atom in a structure, with fractional coordinates.
type Site struct {
	Species string     `json:"species" yaml:"species"`
	Coords  [3]float64 `json:"coords" yaml:"coords"`
}

// Structure is the minimal crystal-structure representation needed to
// build VASP structure inputs: a lattice and a list of occupied sites.
type Structure struct {
	Lattice [3][3]float64 `json:"lattice" yaml:"lattice"`
	Sites   []Site        `json:"sites" yaml:"sites"`
}

// Poscar represents the contents of a VASP POSCAR (or CONTCAR) file.
type Poscar struct {
	Comment string        `json:"comment,omitempty" yaml:"comment,omitempty"`
	Scale   float64       `json:"scale" yaml:"scale"`
	Lattice [3][3]float64 `json:"lattice" yaml:"lattice"`
	Sites   []Site        `json:"sites" yaml:"sites"`
	// Constraints holds the selective dynamics flags per site, with false
	// marking a fixed coordinate. Nil disables selective dynamics.
	Constraints [][3]bool `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	// Velocities holds per-site velocities in Angstrom/fs. Nil omits the
	// velocity block.
	Velocities [][3]float64 `json:"velocities,omitempty" yaml:"velocities,omitempty"`
}

// PoscarOptions carries the optional inputs accepted by NewPoscar.
type PoscarOptions struct {
	// Constraints are Nx3 selective dynamics flags, false meaning fixed.
	Constraints [][3]bool
	// Velocities are Nx3 initial velocities in Angstrom/fs.
	Velocities [][3]float64
	// Temperature, when positive, initializes the velocities from a
	// Maxwell-Boltzmann distribution at the given temperature in K.
	Temperature float64
}

// NewPoscar builds a Poscar from a structure. Sites are sorted by species so
// every species occupies one contiguous block, matching the ordering VASP
// expects relative to the POTCAR.
func NewPoscar(structure Structure, opts PoscarOptions) (*Poscar, error) {
	n := len(structure.Sites)
	if n == 0 {
		return nil, fmt.Errorf("cannot build POSCAR from a structure without sites")
	}
	if opts.Constraints != nil && len(opts.Constraints) != n {
		return nil, fmt.Errorf("got %d constraint entries for %d sites", len(opts.Constraints), n)
	}
	if opts.Velocities != nil && len(opts.Velocities) != n {
		return nil, fmt.Errorf("got %d velocity entries for %d sites", len(opts.Velocities), n)
	}
	if opts.Velocities != nil && opts.Temperature > 0 {
		return nil, fmt.Errorf("velocities and temperature are mutually exclusive")
	}

	// sort sites by species, keeping constraints and velocities attached
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return structure.Sites[order[a]].Species < structure.Sites[order[b]].Species
	})

	poscar := &Poscar{
		Scale:   1.0,
		Lattice: structure.Lattice,
		Sites:   make([]Site, n),
	}
	if opts.Constraints != nil {
		poscar.Constraints = make([][3]bool, n)
	}
	if opts.Velocities != nil {
		poscar.Velocities = make([][3]float64, n)
	}
	for i, j := range order {
		poscar.Sites[i] = structure.Sites[j]
		if opts.Constraints != nil {
			poscar.Constraints[i] = opts.Constraints[j]
		}
		if opts.Velocities != nil {
			poscar.Velocities[i] = opts.Velocities[j]
		}
	}
	poscar.Comment = poscar.formula()

	if opts.Temperature > 0 {
		if err := poscar.SetTemperature(opts.Temperature); err != nil {
			return nil, err
		}
	}
	return poscar, nil
}

// SiteSymbols returns the species symbols in the order their blocks appear,
// which is the order the POTCAR has to follow.
func (p *Poscar) SiteSymbols() []string {
	var symbols []string
	for _, site := range p.Sites {
		if len(symbols) == 0 || symbols[len(symbols)-1] != site.Species {
			symbols = append(symbols, site.Species)
		}
	}
	return symbols
}

// speciesCounts returns the number of consecutive sites per species block.
func (p *Poscar) speciesCounts() []int {
	var counts []int
	last := ""
	for _, site := range p.Sites {
		if site.Species != last {
			counts = append(counts, 0)
			last = site.Species
		}
		counts[len(counts)-1]++
	}
	return counts
}

func (p *Poscar) formula() string {
	symbols := p.SiteSymbols()
	counts := p.speciesCounts()
	parts := make([]string, len(symbols))
	for i, symbol := range symbols {
		parts[i] = fmt.Sprintf("%s%d", symbol, counts[i])
	}
	return strings.Join(parts, " ")
}

// SetTemperature overwrites the velocities with samples from a
// Maxwell-Boltzmann distribution at temperature T (in K). The net momentum
// is removed and the velocities are rescaled so the kinetic energy matches
// the requested temperature exactly.
func (p *Poscar) SetTemperature(temperature float64) error {
	n := len(p.Sites)
	masses := make([]float64, n)
	for i, site := range p.Sites {
		mass, ok := AtomicMass(site.Species)
		if !ok {
			return fmt.Errorf("unknown element %q in structure", site.Species)
		}
		masses[i] = mass
	}

	velocities := make([][3]float64, n)
	for i := range velocities {
		sigma := math.Sqrt(boltzmannEV * temperature / (masses[i] * amuAngPerFsSqToEV))
		for k := 0; k < 3; k++ {
			velocities[i][k] = rand.NormFloat64() * sigma
		}
	}

	// remove center-of-mass drift
	var totalMass float64
	var momentum [3]float64
	for i := range velocities {
		totalMass += masses[i]
		for k := 0; k < 3; k++ {
			momentum[k] += masses[i] * velocities[i][k]
		}
	}
	for i := range velocities {
		for k := 0; k < 3; k++ {
			velocities[i][k] -= momentum[k] / totalMass
		}
	}

	// rescale to the exact target temperature (3N-3 degrees of freedom)
	var kinetic float64
	for i := range velocities {
		for k := 0; k < 3; k++ {
			kinetic += 0.5 * masses[i] * amuAngPerFsSqToEV * velocities[i][k] * velocities[i][k]
		}
	}
	dof := float64(3*n - 3)
	if dof <= 0 {
		dof = 3
	}
	target := 0.5 * dof * boltzmannEV * temperature
	if kinetic > 0 {
		scale := math.Sqrt(target / kinetic)
		for i := range velocities {
			for k := 0; k < 3; k++ {
				velocities[i][k] *= scale
			}
		}
	}
	p.Velocities = velocities
	return nil
}

// String renders the POSCAR file contents in VASP 5 format.
func (p *Poscar) String() string {
	var sb strings.Builder
	comment := p.Comment
	if comment == "" {
		comment = p.formula()
	}
	fmt.Fprintln(&sb, comment)
	scale := p.Scale
	if scale == 0 {
		scale = 1.0
	}
	fmt.Fprintf(&sb, "%.1f\n", scale)
	for _, row := range p.Lattice {
		fmt.Fprintf(&sb, "%22.16f %21.16f %21.16f\n", row[0], row[1], row[2])
	}
	fmt.Fprintln(&sb, strings.Join(p.SiteSymbols(), " "))
	counts := p.speciesCounts()
	countStrs := make([]string, len(counts))
	for i, c := range counts {
		countStrs[i] = strconv.Itoa(c)
	}
	fmt.Fprintln(&sb, strings.Join(countStrs, " "))
	if p.Constraints != nil {
		fmt.Fprintln(&sb, "Selective dynamics")
	}
	fmt.Fprintln(&sb, "Direct")
	for i, site := range p.Sites {
		fmt.Fprintf(&sb, "%20.16f %19.16f %19.16f", site.Coords[0], site.Coords[1], site.Coords[2])
		if p.Constraints != nil {
			for _, free := range p.Constraints[i] {
				if free {
					sb.WriteString(" T")
				} else {
					sb.WriteString(" F")
				}
			}
		}
		sb.WriteString(" " + site.Species + "\n")
	}
	if p.Velocities != nil {
		fmt.Fprintln(&sb)
		for _, v := range p.Velocities {
			fmt.Fprintf(&sb, "%16.8e %15.8e %15.8e\n", v[0], v[1], v[2])
		}
	}
	return sb.String()
}

// Write writes the POSCAR file contents to w.
func (p *Poscar) Write(w io.Writer) error {
	_, err := io.WriteString(w, p.String())
	return err
}

// WriteFile writes the POSCAR file to the given path.
func (p *Poscar) WriteFile(path string) error {
	return os.WriteFile(path, []byte(p.String()), 0644)
}

// Structure returns the lattice and sites stored in the Poscar.
func (p *Poscar) Structure() Structure {
	return Structure{Lattice: p.Lattice, Sites: p.Sites}
}

// ParsePoscar reads a POSCAR or CONTCAR file in VASP 5 format, including
// selective dynamics flags and trailing velocities when present.
func ParsePoscar(r io.Reader) (*Poscar, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read POSCAR contents: %w", err)
	}
	if len(lines) < 8 {
		return nil, fmt.Errorf("POSCAR truncated: got %d lines", len(lines))
	}

	poscar := &Poscar{Comment: strings.TrimSpace(lines[0])}
	scale, err := strconv.ParseFloat(strings.TrimSpace(lines[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("malformed POSCAR scale factor %q", strings.TrimSpace(lines[1]))
	}
	poscar.Scale = scale
	for i := 0; i < 3; i++ {
		row, err := parseFloats(lines[2+i], 3)
		if err != nil {
			return nil, fmt.Errorf("malformed POSCAR lattice row %d: %w", i+1, err)
		}
		poscar.Lattice[i] = [3]float64{row[0], row[1], row[2]}
	}

	symbols := strings.Fields(lines[5])
	if len(symbols) == 0 {
		return nil, fmt.Errorf("missing species symbols on POSCAR line 6 (VASP 4 format is not supported)")
	}
	for _, symbol := range symbols {
		if !IsElement(symbol) {
			return nil, fmt.Errorf("unknown species symbol %q in POSCAR", symbol)
		}
	}
	countFields := strings.Fields(lines[6])
	if len(countFields) != len(symbols) {
		return nil, fmt.Errorf("got %d species counts for %d symbols", len(countFields), len(symbols))
	}
	counts := make([]int, len(countFields))
	total := 0
	for i, field := range countFields {
		counts[i], err = strconv.Atoi(field)
		if err != nil || counts[i] < 1 {
			return nil, fmt.Errorf("malformed species count %q in POSCAR", field)
		}
		total += counts[i]
	}

	cursor := 7
	selective := false
	if len(lines) > cursor {
		switch first := strings.TrimSpace(lines[cursor]); {
		case first != "" && (first[0] == 'S' || first[0] == 's'):
			selective = true
			cursor++
		}
	}
	if len(lines) <= cursor {
		return nil, fmt.Errorf("POSCAR truncated before coordinate mode line")
	}
	mode := strings.TrimSpace(lines[cursor])
	if mode == "" {
		return nil, fmt.Errorf("missing POSCAR coordinate mode line")
	}
	cartesian := false
	switch mode[0] {
	case 'D', 'd':
	case 'C', 'c', 'K', 'k':
		cartesian = true
	default:
		return nil, fmt.Errorf("unsupported POSCAR coordinate mode %q", mode)
	}
	cursor++

	if len(lines) < cursor+total {
		return nil, fmt.Errorf("POSCAR truncated: expected %d coordinate lines", total)
	}
	if selective {
		poscar.Constraints = make([][3]bool, 0, total)
	}
	for i, symbol := range symbols {
		for j := 0; j < counts[i]; j++ {
			fields := strings.Fields(lines[cursor])
			cursor++
			if len(fields) < 3 {
				return nil, fmt.Errorf("malformed POSCAR coordinate line %q", lines[cursor-1])
			}
			var site Site
			site.Species = symbol
			for k := 0; k < 3; k++ {
				site.Coords[k], err = strconv.ParseFloat(fields[k], 64)
				if err != nil {
					return nil, fmt.Errorf("malformed coordinate %q in POSCAR", fields[k])
				}
			}
			poscar.Sites = append(poscar.Sites, site)
			if selective {
				if len(fields) < 6 {
					return nil, fmt.Errorf("missing selective dynamics flags on line %q", lines[cursor-1])
				}
				var flags [3]bool
				for k := 0; k < 3; k++ {
					flags[k] = strings.EqualFold(fields[3+k], "T")
				}
				poscar.Constraints = append(poscar.Constraints, flags)
			}
		}
	}

	if cartesian {
		// cartesian positions map back to fractional ones through the
		// inverse of the scaled lattice, row-vector convention
		var scaled [3][3]float64
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				scaled[i][j] = poscar.Scale * poscar.Lattice[i][j]
			}
		}
		inv, err := invertMatrix(scaled)
		if err != nil {
			return nil, fmt.Errorf("cannot convert cartesian POSCAR coordinates: %w", err)
		}
		for i := range poscar.Sites {
			cart := poscar.Sites[i].Coords
			var frac [3]float64
			for j := 0; j < 3; j++ {
				frac[j] = cart[0]*inv[0][j] + cart[1]*inv[1][j] + cart[2]*inv[2][j]
			}
			poscar.Sites[i].Coords = frac
		}
	}

	// optional velocity block after a blank separator line
	for cursor < len(lines) && strings.TrimSpace(lines[cursor]) == "" {
		cursor++
	}
	if cursor < len(lines) && len(lines) >= cursor+total {
		velocities := make([][3]float64, 0, total)
		ok := true
		for i := 0; i < total; i++ {
			row, err := parseFloats(lines[cursor+i], 3)
			if err != nil {
				ok = false
				break
			}
			velocities = append(velocities, [3]float64{row[0], row[1], row[2]})
		}
		if ok {
			poscar.Velocities = velocities
		}
	}
	return poscar, nil
}

// ParsePoscarFile reads a POSCAR or CONTCAR file from disk.
func ParsePoscarFile(path string) (*Poscar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParsePoscar(f)
}

// invertMatrix inverts a 3x3 matrix, failing on a singular lattice.
func invertMatrix(m [3][3]float64) ([3][3]float64, error) {
	var inv [3][3]float64
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-12 {
		return inv, fmt.Errorf("lattice matrix is singular")
	}
	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) / det
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) / det
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) / det
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) / det
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) / det
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) / det
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) / det
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) / det
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) / det
	return inv, nil
}

func parseFloats(line string, n int) ([]float64, error) {
	fields := strings.Fields(line)
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(fields))
	}
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed value %q", fields[i])
		}
		values[i] = v
	}
	return values, nil
}
