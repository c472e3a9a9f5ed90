package vasp

import (
	"strings"
	"testing"
)

func fakePotential(title, element string) []byte {
	var sb strings.Builder
	sb.WriteString(title + "\n")
	sb.WriteString(" parameters from PSCTR are:\n")
	sb.WriteString("   VRHFIN =" + element + ": groundstate config\n")
	sb.WriteString("   TITEL  = " + title + "\n")
	sb.WriteString("END of PSCTR-controll parameters\n")
	sb.WriteString(" local part\n")
	sb.WriteString("  0.17 0.23 0.42\n")
	return []byte(sb.String())
}

func TestParsePotential(t *testing.T) {
	contents := fakePotential("PAW_PBE Si 05Jan2001", "Si")

	info, err := ParsePotential(contents)
	if err != nil {
		t.Fatalf("ParsePotential returned error: %v", err)
	}
	if info.Element != "Si" {
		t.Errorf("element = %q, want Si", info.Element)
	}
	if info.Version != 20010105 {
		t.Errorf("version = %d, want 20010105", info.Version)
	}
	if info.TitleLine != "PAW_PBE Si 05Jan2001" {
		t.Errorf("title line = %q", info.TitleLine)
	}
	if info.Hash != HashPotentialContents(contents) {
		t.Errorf("hash mismatch")
	}
}

func TestParsePotentialGermanMonth(t *testing.T) {
	info, err := ParsePotential(fakePotential("PAW_PBE W 10Okt2001", "W"))
	if err != nil {
		t.Fatalf("ParsePotential returned error: %v", err)
	}
	if info.Version != 20011010 {
		t.Errorf("version = %d, want 20011010", info.Version)
	}
}

func TestParsePotentialQuirk(t *testing.T) {
	// two-digit year in the title line, corrected by the quirk table
	info, err := ParsePotential(fakePotential("PAW_PBE Bi_pv 29Jan08", "Bi"))
	if err != nil {
		t.Fatalf("ParsePotential returned error: %v", err)
	}
	if info.Version != 20080129 {
		t.Errorf("version = %d, want 20080129", info.Version)
	}
}

func TestParseCoulombPotential(t *testing.T) {
	// the all-electron H potential carries no creation date at all
	info, err := ParsePotential(fakePotential("H_AE Coulomb potential", "H"))
	if err != nil {
		t.Fatalf("ParsePotential returned error: %v", err)
	}
	if info.Version != coulombPotentialVersion {
		t.Errorf("version = %d, want %d", info.Version, coulombPotentialVersion)
	}
}

func TestParsePotentialMissingHeader(t *testing.T) {
	if _, err := ParsePotential([]byte("not a potential file\n")); err == nil {
		t.Fatalf("expected an error for contents without a PSCTR section")
	}
}

func TestHashIgnoresWhitespace(t *testing.T) {
	a := fakePotential("PAW_PBE Si 05Jan2001", "Si")
	b := []byte(strings.ReplaceAll(string(a), " ", "  \t "))
	if HashPotentialContents(a) != HashPotentialContents(b) {
		t.Fatalf("hash changed with whitespace-only differences")
	}

	c := fakePotential("PAW_PBE Si 05Jan2001", "Ge")
	if HashPotentialContents(a) == HashPotentialContents(c) {
		t.Fatalf("different contents produced the same hash")
	}
}

func TestAssemblePotcar(t *testing.T) {
	poscar, err := NewPoscar(testStructure(), PoscarOptions{})
	if err != nil {
		t.Fatalf("NewPoscar returned error: %v", err)
	}

	payloads := map[string][]byte{
		"Li": []byte("LI-PAYLOAD"),
		"O":  []byte("O-PAYLOAD\n"),
	}
	contents, err := AssemblePotcar(poscar, payloads)
	if err != nil {
		t.Fatalf("AssemblePotcar returned error: %v", err)
	}
	if string(contents) != "LI-PAYLOAD\nO-PAYLOAD\n" {
		t.Fatalf("unexpected POTCAR contents %q", contents)
	}

	delete(payloads, "O")
	if _, err := AssemblePotcar(poscar, payloads); err == nil {
		t.Fatalf("expected an error for a missing species payload")
	}
}

func TestValidatePotentialVersion(t *testing.T) {
	if err := ValidatePotentialVersion(20010105); err != nil {
		t.Errorf("valid version rejected: %v", err)
	}
	if err := ValidatePotentialVersion(42); err == nil {
		t.Errorf("expected an error for a version without YYYYMMDD shape")
	}
}
