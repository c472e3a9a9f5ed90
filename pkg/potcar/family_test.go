package potcar

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePotentialPath(t *testing.T) {
	cases := []struct {
		path       string
		name       string
		functional string
		ok         bool
	}{
		{"/srv/vasp/potpaw_PBE/Si/POTCAR", "Si", "pbe", true},
		{"/srv/vasp/potpaw_LDA.52/Li_sv/POTCAR", "Li_sv", "lda_52", true},
		{"/srv/vasp/extracted/potpaw_GGA/H/POTCAR", "H", "pw91", true},
		{"/srv/vasp/somewhere/Si/POTCAR", "", "", false},
		{"POTCAR", "", "", false},
	}
	for _, c := range cases {
		info, err := ParsePotentialPath(c.path)
		if !c.ok {
			if err == nil {
				t.Errorf("ParsePotentialPath(%q) succeeded, want error", c.path)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePotentialPath(%q) returned error: %v", c.path, err)
			continue
		}
		if info.Name != c.name || info.Functional != c.functional {
			t.Errorf("ParsePotentialPath(%q) = %+v, want (%s, %s)", c.path, info, c.name, c.functional)
		}
	}
}

func writeFamilyTree(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "potpaw_PBE")
	files := map[string][]byte{
		"Si/POTCAR": fakePotential("PAW_PBE Si 05Jan2001", "Si"),
		"Li/POTCAR": fakePotential("PAW_PBE Li 17Jan2003", "Li"),
		// headers missing, the scan has to skip it
		"O/POTCAR": []byte("not a potential file\n"),
	}
	for rel, contents := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, contents, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestPrepareFamily(t *testing.T) {
	store := openTestStore(t)
	addPotential(t, store, "Li", "pbe", fakePotential("PAW_PBE Li 17Jan2003", "Li"))

	result, err := store.PrepareFamily(writeFamilyTree(t))
	if err != nil {
		t.Fatalf("PrepareFamily returned error: %v", err)
	}
	if len(result.Pending) != 1 || result.Pending[0].Name != "Si" {
		t.Fatalf("pending = %v, want only Si", result.Pending)
	}
	if len(result.Present) != 1 {
		t.Fatalf("present = %v, want the stored Li file", result.Present)
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("skipped = %v, want the malformed O file", result.Skipped)
	}
}

func TestCommitFamily(t *testing.T) {
	store := openTestStore(t)
	result, err := store.PrepareFamily(writeFamilyTree(t))
	if err != nil {
		t.Fatal(err)
	}
	outcome := store.CommitFamily(result)
	if len(outcome.Added) != 2 {
		t.Fatalf("added = %v, want Si and Li", outcome.Added)
	}
	if len(outcome.Skipped) != 1 {
		t.Fatalf("skipped = %v, want the malformed O file", outcome.Skipped)
	}

	for _, name := range []string{"Si", "Li"} {
		if _, err := store.Find(Filter{Name: name, Functional: "pbe"}); err != nil {
			t.Errorf("potential %s not stored: %v", name, err)
		}
	}
}
