package calculation

import (
	"strings"
	"testing"

	"github.com/cusptools/cusp/pkg/potcar"
	"github.com/cusptools/cusp/pkg/vasp"
)

func testIncar() vasp.Incar {
	return vasp.NewIncar(map[string]interface{}{
		"ENCUT":  450,
		"IBRION": 2,
	})
}

func testPoscar(t *testing.T) *vasp.Poscar {
	t.Helper()
	structure := vasp.Structure{
		Lattice: [3][3]float64{{4.6, 0, 0}, {0, 4.6, 0}, {0, 0, 4.6}},
		Sites: []vasp.Site{
			{Species: "Li", Coords: [3]float64{0.25, 0.25, 0.25}},
			{Species: "Li", Coords: [3]float64{0.75, 0.75, 0.75}},
			{Species: "O", Coords: [3]float64{0, 0, 0}},
		},
	}
	poscar, err := vasp.NewPoscar(structure, vasp.PoscarOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return poscar
}

func testReferences(t *testing.T) map[string]potcar.Reference {
	t.Helper()
	return map[string]potcar.Reference{
		"Li": {Name: "Li", Element: "Li", Functional: "pbe", Version: 20030117},
		"O":  {Name: "O", Element: "O", Functional: "pbe", Version: 20120322},
	}
}

func TestVerify(t *testing.T) {
	poscar := testPoscar(t)
	kpoints := vasp.GammaKpoints([3]int{4, 4, 4}, [3]float64{})
	refs := testReferences(t)

	cases := []struct {
		name    string
		inputs  Inputs
		errPart string
	}{
		{
			name: "complete regular",
			inputs: Inputs{
				Incar: testIncar(), Kpoints: kpoints, Poscar: poscar, Potcar: refs,
			},
		},
		{
			name: "poscar and neb images",
			inputs: Inputs{
				Incar: testIncar(), Kpoints: kpoints, Poscar: poscar,
				NEBImages: map[string]*vasp.Poscar{"node_00": poscar}, Potcar: refs,
			},
			errPart: "cannot be set at the same time",
		},
		{
			name:    "no structure at all",
			inputs:  Inputs{Incar: testIncar(), Kpoints: kpoints, Potcar: refs},
			errPart: "poscar or neb images",
		},
		{
			name:    "missing incar and kpoints",
			inputs:  Inputs{Poscar: poscar, Potcar: refs},
			errPart: "incar, kpoints",
		},
		{
			name: "ill-formed neb key",
			inputs: Inputs{
				Incar: testIncar(), Kpoints: kpoints, Potcar: refs,
				NEBImages: map[string]*vasp.Poscar{"image_1": poscar},
			},
			errPart: "ill-formed NEB image identifier",
		},
		{
			name: "restart forbids poscar and potcar",
			inputs: Inputs{
				Poscar: poscar, Potcar: refs,
				Restart: &RestartInputs{Folder: "/tmp/parent"},
			},
			errPart: "poscar, potcar",
		},
		{
			name:    "restart without a parent folder",
			inputs:  Inputs{Restart: &RestartInputs{}},
			errPart: "parent run directory",
		},
		{
			name:   "restart with optional inputs only",
			inputs: Inputs{Incar: testIncar(), Restart: &RestartInputs{Folder: "/tmp/parent"}},
		},
	}

	for _, c := range cases {
		err := c.inputs.Verify()
		if c.errPart == "" {
			if err != nil {
				t.Errorf("%s: Verify returned error: %v", c.name, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("%s: Verify succeeded, want error containing %q", c.name, c.errPart)
			continue
		}
		if !strings.Contains(err.Error(), c.errPart) {
			t.Errorf("%s: error %q does not contain %q", c.name, err, c.errPart)
		}
	}
}

func TestNEBImageDirs(t *testing.T) {
	inputs := Inputs{NEBImages: map[string]*vasp.Poscar{
		"node_02": nil, "node_00": nil, "node_01": nil,
	}}
	keys := inputs.nebImageKeys()
	want := []string{"node_00", "node_01", "node_02"}
	for i, key := range keys {
		if key != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	if nebImageDir("node_07") != "07" {
		t.Fatalf("nebImageDir(node_07) = %s", nebImageDir("node_07"))
	}
}
