package calculation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cusptools/cusp/pkg/custodian"
	"github.com/cusptools/cusp/pkg/potcar"
	"github.com/cusptools/cusp/pkg/vasp"
)

func storedPotential(title, element string) []byte {
	return []byte(title + "\n" +
		" parameters from PSCTR are:\n" +
		"   VRHFIN =" + element + ": groundstate config\n" +
		"   TITEL  = " + title + "\n" +
		"END of PSCTR-controll parameters\n" +
		" local part\n" +
		"  0.17 0.23 0.42\n")
}

// testStore returns a potential library holding pbe potentials for Li and O.
func testStore(t *testing.T) *potcar.Store {
	t.Helper()
	store, err := potcar.Open(filepath.Join(t.TempDir(), "potentials"))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []struct{ name, title string }{
		{"Li", "PAW_PBE Li 17Jan2003"},
		{"O", "PAW_PBE O 22Mar2012"},
	} {
		path := filepath.Join(t.TempDir(), vasp.PotcarName)
		if err := os.WriteFile(path, storedPotential(p.title, p.name), 0644); err != nil {
			t.Fatal(err)
		}
		pending, err := store.Prepare(path, p.name, "pbe")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := store.Commit(pending); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func storeReferences(t *testing.T, store *potcar.Store, poscar *vasp.Poscar) map[string]potcar.Reference {
	t.Helper()
	refs, err := store.ReferencesForStructure(poscar, "pbe", nil)
	if err != nil {
		t.Fatal(err)
	}
	return refs
}

func mustExist(t *testing.T, paths ...string) {
	t.Helper()
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected file missing: %v", err)
		}
	}
}

func mustNotExist(t *testing.T, paths ...string) {
	t.Helper()
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			t.Errorf("unexpected file %s", path)
		}
	}
}

func TestPrepareRegular(t *testing.T) {
	store := testStore(t)
	poscar := testPoscar(t)
	inputs := Inputs{
		Incar:   testIncar(),
		Kpoints: vasp.GammaKpoints([3]int{4, 4, 4}, [3]float64{}),
		Poscar:  poscar,
		Potcar:  storeReferences(t, store, poscar),
	}
	calc, err := New(store, inputs)
	if err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(t.TempDir(), "run")
	if err := calc.Prepare(dir, nil); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	mustExist(t,
		filepath.Join(dir, vasp.IncarName),
		filepath.Join(dir, vasp.KpointsName),
		filepath.Join(dir, vasp.PoscarName),
		filepath.Join(dir, vasp.PotcarName),
	)
	mustNotExist(t, filepath.Join(dir, custodian.SpecFileName))
}

func TestPrepareWithCustodian(t *testing.T) {
	store := testStore(t)
	poscar := testPoscar(t)
	inputs := Inputs{
		Incar:     testIncar(),
		Kpoints:   vasp.GammaKpoints([3]int{4, 4, 4}, [3]float64{}),
		Poscar:    poscar,
		Potcar:    storeReferences(t, store, poscar),
		Custodian: &CustodianInputs{},
	}
	calc, err := New(store, inputs)
	if err != nil {
		t.Fatal(err)
	}

	// the spec cannot be written without the VASP command line
	if err := calc.Prepare(filepath.Join(t.TempDir(), "run"), nil); err == nil {
		t.Fatalf("Prepare without a VASP command succeeded")
	}

	dir := filepath.Join(t.TempDir(), "run")
	if err := calc.Prepare(dir, []string{"mpirun", "vasp_std"}); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	mustExist(t, filepath.Join(dir, custodian.SpecFileName))
}

func TestPrepareNEB(t *testing.T) {
	store := testStore(t)
	poscar := testPoscar(t)
	inputs := Inputs{
		Incar:   testIncar(),
		Kpoints: vasp.GammaKpoints([3]int{4, 4, 4}, [3]float64{}),
		NEBImages: map[string]*vasp.Poscar{
			"node_00": poscar,
			"node_01": poscar,
			"node_02": poscar,
		},
		Potcar: storeReferences(t, store, poscar),
	}
	calc, err := New(store, inputs)
	if err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(t.TempDir(), "run")
	if err := calc.Prepare(dir, nil); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	mustExist(t,
		filepath.Join(dir, vasp.IncarName),
		filepath.Join(dir, vasp.KpointsName),
		filepath.Join(dir, vasp.PotcarName),
		filepath.Join(dir, "00", vasp.PoscarName),
		filepath.Join(dir, "01", vasp.PoscarName),
		filepath.Join(dir, "02", vasp.PoscarName),
	)
	// images get no POTCAR of their own and no POSCAR lives at the root
	mustNotExist(t,
		filepath.Join(dir, vasp.PoscarName),
		filepath.Join(dir, "00", vasp.PotcarName),
	)
}

// writeParentRun fills a directory like a finished calculation would leave it.
func writeParentRun(t *testing.T) string {
	t.Helper()
	parent := filepath.Join(t.TempDir(), "parent")
	if err := os.MkdirAll(parent, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		vasp.IncarName:         "ENCUT = 450\n",
		vasp.KpointsName:       "Automatic mesh\n0\nAuto\n  40\n",
		vasp.PoscarName:        "initial structure\n",
		vasp.ContcarName:       "relaxed structure\n",
		vasp.PotcarName:        "potential payloads\n",
		vasp.OutcarName:        "outcar contents\n",
		"cusp.out":             "stdout\n",
		"cusp.err":             "stderr\n",
		custodian.SpecFileName: "jobs: []\n",
		custodian.RunLogName:   "custodian log\n",
	}
	for name, contents := range files {
		if err := os.WriteFile(filepath.Join(parent, name), []byte(contents), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return parent
}

func TestPrepareRestart(t *testing.T) {
	store := testStore(t)
	parent := writeParentRun(t)
	calc, err := New(store, Inputs{
		Incar:   testIncar(),
		Restart: &RestartInputs{Folder: parent},
	})
	if err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(t.TempDir(), "run")
	if err := calc.Prepare(dir, nil); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	mustExist(t,
		filepath.Join(dir, vasp.KpointsName),
		filepath.Join(dir, vasp.PotcarName),
		filepath.Join(dir, vasp.OutcarName),
	)
	// bookkeeping files and the promoted CONTCAR stay behind
	mustNotExist(t,
		filepath.Join(dir, vasp.ContcarName),
		filepath.Join(dir, "cusp.out"),
		filepath.Join(dir, "cusp.err"),
		filepath.Join(dir, custodian.SpecFileName),
		filepath.Join(dir, custodian.RunLogName),
	)

	// the parent CONTCAR becomes the new POSCAR
	contents, err := os.ReadFile(filepath.Join(dir, vasp.PoscarName))
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "relaxed structure\n" {
		t.Fatalf("POSCAR = %q, want the parent CONTCAR contents", contents)
	}

	// the re-supplied INCAR replaces the parent one
	contents, err = os.ReadFile(filepath.Join(dir, vasp.IncarName))
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) == "ENCUT = 450\n" {
		t.Fatalf("parent INCAR was copied even though a new one was supplied")
	}
}

func TestPrepareRestartWithoutPromotion(t *testing.T) {
	store := testStore(t)
	parent := writeParentRun(t)
	promote := false
	calc, err := New(store, Inputs{
		Restart: &RestartInputs{Folder: parent, ContcarToPoscar: &promote},
	})
	if err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(t.TempDir(), "run")
	if err := calc.Prepare(dir, nil); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	for name, want := range map[string]string{
		vasp.PoscarName:  "initial structure\n",
		vasp.ContcarName: "relaxed structure\n",
	} {
		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if string(contents) != want {
			t.Errorf("%s = %q, want %q", name, contents, want)
		}
	}
}

func TestPrepareRestartMissingParent(t *testing.T) {
	calc, err := New(testStore(t), Inputs{
		Restart: &RestartInputs{Folder: filepath.Join(t.TempDir(), "does-not-exist")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := calc.Prepare(filepath.Join(t.TempDir(), "run"), nil); err == nil {
		t.Fatalf("Prepare succeeded with a missing parent directory")
	}
}
