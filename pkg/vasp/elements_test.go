package vasp

import "testing"

func TestElementFromPotentialName(t *testing.T) {
	cases := []struct {
		name    string
		element string
		ok      bool
	}{
		{"Li", "Li", true},
		{"Li_sv", "Li", true},
		{"Ge_pv_GW", "Ge", true},
		{"H1.25", "H", true},
		{"Xy_sv", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		element, ok := ElementFromPotentialName(tc.name)
		if ok != tc.ok || element != tc.element {
			t.Errorf("ElementFromPotentialName(%q) = %q, %v; want %q, %v",
				tc.name, element, ok, tc.element, tc.ok)
		}
	}
}

func TestFunctionals(t *testing.T) {
	if !IsFunctional("pbe") {
		t.Errorf("pbe has to be a valid functional")
	}
	if IsFunctional("b3lyp") {
		t.Errorf("b3lyp must not be a valid functional")
	}
}
