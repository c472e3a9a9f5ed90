package vasp

// Canonical VASP file names.
const (
	IncarName   = "INCAR"
	KpointsName = "KPOINTS"
	PoscarName  = "POSCAR"
	PotcarName  = "POTCAR"

	ContcarName = "CONTCAR"
	OutcarName  = "OUTCAR"
	ChgcarName  = "CHGCAR"
	WavecarName = "WAVECAR"
	VasprunName = "vasprun.xml"
)

// OutputFilenames lists every file name VASP may leave behind in a run
// directory, keyed by a lower-case identifier.
var OutputFilenames = map[string]string{
	"contcar":    ContcarName,
	"chg":        "CHG",
	"chgcar":     ChgcarName,
	"doscar":     "DOSCAR",
	"eigenval":   "EIGENVAL",
	"elfcar":     "ELFCAR",
	"ibzkpt":     "IBZKPT",
	"locpot":     "LOCPOT",
	"oszicar":    "OSZICAR",
	"outcar":     OutcarName,
	"parchg":     "PARCHG",
	"pcdat":      "PCDAT",
	"procar":     "PROCAR",
	"proout":     "PROOUT",
	"report":     "REPORT",
	"tmpcar":     "TMPCAR",
	"vasprun":    VasprunName,
	"wavecar":    WavecarName,
	"waveder":    "WAVEDER",
	"xdatcar":    "XDATCAR",
	"bsefatband": "BSEFATBAND",
}

// FunctionalMap translates the potential library archive folder names
// shipped by VASP to the short functional identifiers used throughout cusp.
var FunctionalMap = map[string]string{
	// LDA type potentials
	"potuspp_lda":   "lda_us",
	"potpaw_lda":    "lda",
	"potpaw_lda.52": "lda_52",
	"potpaw_lda.54": "lda_54",
	// PBE type potentials
	"potpaw_pbe":    "pbe",
	"potpaw_pbe.52": "pbe_52",
	"potpaw_pbe.54": "pbe_54",
	// PW91 type potentials
	"potuspp_gga": "pw91_us",
	"potpaw_gga":  "pw91",
}

// Functionals returns the list of valid short functional identifiers.
func Functionals() []string {
	return []string{
		"lda_us", "lda", "lda_52", "lda_54",
		"pbe", "pbe_52", "pbe_54",
		"pw91_us", "pw91",
	}
}

// IsFunctional reports whether functional is a valid short identifier.
func IsFunctional(functional string) bool {
	for _, f := range Functionals() {
		if f == functional {
			return true
		}
	}
	return false
}
