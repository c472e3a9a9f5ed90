package vasp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PotentialInfo holds the identifiers parsed from a single pseudo-potential
// file: the element given by the VRHFIN tag, the creation date from the
// title line as numeric YYYYMMDD version, and the sha-256 over the
// whitespace-reduced contents.
type PotentialInfo struct {
	Element   string
	Version   int
	Hash      string
	TitleLine string
	Header    string
}

var (
	// consecutive whitespace and the occasional stray '^' are collapsed
	// before hashing so formatting differences do not distinguish otherwise
	// identical potentials
	reReduceContent = regexp.MustCompile(`[\^ \t]+`)
	rePotcarHeader  = regexp.MustCompile(`(?is)^(.+?)end of psctr`)
	rePotcarElement = regexp.MustCompile(`(?i)VRHFIN\s*=\s*([a-z]+)\s*:`)
	rePotcarDate    = regexp.MustCompile(`(?i)([0-9]+)([a-z]{3,})([0-9]+)`)
)

// monthNumbers converts title-line month strings to their numeric value.
// Some potential files use german month abbreviations.
var monthNumbers = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9,
	"oct": 10, "okt": 10,
	"nov": 11,
	"dec": 12, "dez": 12,
}

// potentialQuirks corrects known-broken identifiers in shipped potential
// files, keyed by the exact title line.
var potentialQuirks = map[string]func(*PotentialInfo){
	"PAW_PBE Xe 07Sep2000":           func(p *PotentialInfo) { p.Element = "Xe" },
	"PAW Xe 07Sep2000":               func(p *PotentialInfo) { p.Element = "Xe" },
	"PAW_PBE Zr_sv 04Jan2005":        func(p *PotentialInfo) { p.Element = "Zr" },
	"US Bi":                          func(p *PotentialInfo) { p.Element = "Bi" },
	"PAW Bi_pv 29Jan08":              func(p *PotentialInfo) { p.Version = 20080129 },
	"PAW Ga_d_GW 10Nov06":            func(p *PotentialInfo) { p.Version = 20061110 },
	"PAW_PBE Bi_pv 29Jan08":          func(p *PotentialInfo) { p.Version = 20080129 },
	"PAW_PBE Bi_pv 29Jan08 GW ready": func(p *PotentialInfo) { p.Version = 20080129 },
	"PAW_PBE Ga_sv_GW 03Mar08":       func(p *PotentialInfo) { p.Version = 20080303 },
}

// coulombPotentialVersion is assigned to the H_AE all-electron potential,
// whose title line carries no creation date.
const coulombPotentialVersion = 99999999

// ReducePotentialContents collapses consecutive whitespace and stray '^'
// characters. Hashes and header parsing operate on the reduced contents.
func ReducePotentialContents(contents []byte) string {
	return reReduceContent.ReplaceAllString(string(contents), " ")
}

// HashPotentialContents returns the hex sha-256 of the reduced contents.
func HashPotentialContents(contents []byte) string {
	sum := sha256.Sum256([]byte(ReducePotentialContents(contents)))
	return hex.EncodeToString(sum[:])
}

// ParsePotential extracts the identifiers from a single pseudo-potential
// file's contents.
func ParsePotential(contents []byte) (*PotentialInfo, error) {
	reduced := ReducePotentialContents(contents)

	headerMatch := rePotcarHeader.FindStringSubmatch(reduced)
	if headerMatch == nil {
		return nil, fmt.Errorf("failed to locate the PSCTR header section")
	}
	info := &PotentialInfo{
		Header: headerMatch[1],
	}
	sum := sha256.Sum256([]byte(reduced))
	info.Hash = hex.EncodeToString(sum[:])
	if idx := strings.IndexByte(info.Header, '\n'); idx >= 0 {
		info.TitleLine = strings.TrimSpace(info.Header[:idx])
	} else {
		info.TitleLine = strings.TrimSpace(info.Header)
	}

	elementMatch := rePotcarElement.FindStringSubmatch(reduced)
	if elementMatch == nil {
		return nil, fmt.Errorf("failed to parse the element from the VRHFIN tag")
	}
	info.Element = elementMatch[1]

	version, err := parsePotentialVersion(reduced, info.Element)
	if err != nil {
		return nil, err
	}
	info.Version = version

	if quirk, ok := potentialQuirks[info.TitleLine]; ok {
		quirk(info)
	}
	return info, nil
}

func parsePotentialVersion(reduced, element string) (int, error) {
	match := rePotcarDate.FindStringSubmatch(reduced)
	if match == nil {
		// the H_AE Coulomb potential carries no creation date
		if element == "H" {
			return coulombPotentialVersion, nil
		}
		return 0, fmt.Errorf("failed to parse the creation date from the title line")
	}
	day, _ := strconv.Atoi(match[1])
	year, _ := strconv.Atoi(match[3])
	month, ok := monthNumbers[strings.ToLower(match[2])]
	if !ok {
		return 0, fmt.Errorf("unknown month %q in potential creation date", match[2])
	}
	return year*10000 + month*100 + day, nil
}

// PotentialHeader returns everything up to the "End of PSCTR" marker of a
// potential file, used to display potential info without exposing the
// copyrighted payload.
func PotentialHeader(contents []byte) (string, error) {
	match := rePotcarHeader.FindStringSubmatch(string(contents))
	if match == nil {
		return "", fmt.Errorf("failed to locate the PSCTR header section")
	}
	return match[1], nil
}

// AssemblePotcar concatenates the raw potential contents for each species
// block of the given structure, in the order the species appear. payloads
// maps element symbols to the full single-potential file contents.
func AssemblePotcar(poscar *Poscar, payloads map[string][]byte) ([]byte, error) {
	var sb strings.Builder
	for _, symbol := range poscar.SiteSymbols() {
		payload, ok := payloads[symbol]
		if !ok {
			return nil, fmt.Errorf("no potential for site symbol %q", symbol)
		}
		sb.Write(payload)
		if len(payload) > 0 && payload[len(payload)-1] != '\n' {
			sb.WriteByte('\n')
		}
	}
	return []byte(sb.String()), nil
}

// ValidatePotentialVersion checks the numeric YYYYMMDD shape of a version.
func ValidatePotentialVersion(version int) error {
	if version < 10000101 {
		return fmt.Errorf("potential version %d does not correspond to the expected YYYYMMDD format", version)
	}
	return nil
}
