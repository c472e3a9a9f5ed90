package potcar

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/cusptools/cusp/pkg/vasp"
)

// Reference points at a stored potential without carrying its payload. Only
// references travel through calculation inputs and job records; the payload
// is resolved from the library when the POTCAR is assembled.
type Reference struct {
	Name       string `json:"name" yaml:"name"`
	Element    string `json:"element" yaml:"element"`
	Functional string `json:"functional" yaml:"functional"`
	Version    int    `json:"version" yaml:"version"`
	UUID       string `json:"uuid" yaml:"uuid"`
	Hash       string `json:"hash" yaml:"hash"`
}

// Label returns the short display form "Li_sv pbe (v20130106)".
func (ref Reference) Label() string {
	return fmt.Sprintf("%s %s (v%d)", ref.Name, ref.Functional, ref.Version)
}

// NewReference builds a reference from the full identifier triple. All
// three identifiers are required.
func (s *Store) NewReference(name, functional string, version int) (*Reference, error) {
	if name == "" {
		return nil, fmt.Errorf("missing non-optional argument name")
	}
	if functional == "" {
		return nil, fmt.Errorf("missing non-optional argument functional")
	}
	if version == 0 {
		return nil, fmt.Errorf("missing non-optional argument version")
	}
	matches, err := s.Find(Filter{Name: name, Functional: functional, Version: version})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, pkgerrors.Wrapf(ErrPotentialNotFound,
			"name %s, functional %s, version %d", name, functional, version)
	}
	r := matches[0]
	return &Reference{
		Name:       r.Name,
		Element:    r.Element,
		Functional: r.Functional,
		Version:    r.Version,
		UUID:       r.UUID,
		Hash:       r.Hash,
	}, nil
}

// Resolve loads the payload a reference points at. Lookup goes by UUID
// first and falls back to the content hash, so references imported from
// another library still resolve. The stored identifiers are cross-checked
// against the reference.
func (s *Store) Resolve(ref Reference) ([]byte, error) {
	record, err := s.Get(ref.UUID)
	if err != nil {
		matches, ferr := s.Find(Filter{Hash: ref.Hash})
		if ferr != nil || len(matches) == 0 {
			return nil, pkgerrors.Wrapf(ErrPotentialNotFound,
				"no potential file for %s (tried UUID and hash)", ref.Label())
		}
		record = &matches[0]
	}
	if record.Name != ref.Name || record.Version != ref.Version ||
		record.Functional != ref.Functional || record.Hash != ref.Hash {
		return nil, fmt.Errorf("stored potential %s does not match reference %s", record.Label(), ref.Label())
	}
	return s.Contents(record.UUID)
}

// Override customizes the potential selected for one element by
// ReferencesForStructure.
type Override struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version int    `json:"version,omitempty" yaml:"version,omitempty"`
}

// ReferencesForStructure selects one potential per element of the
// structure. By default the potential name equals the element symbol and
// the latest stored version wins; overrides change name and/or version per
// element.
func (s *Store) ReferencesForStructure(poscar *vasp.Poscar, functional string, overrides map[string]Override) (map[string]Reference, error) {
	if !vasp.IsFunctional(functional) {
		return nil, fmt.Errorf("functional %q is not valid (allowed: %v)", functional, vasp.Functionals())
	}
	refs := make(map[string]Reference)
	for _, symbol := range poscar.SiteSymbols() {
		filter := Filter{Name: symbol, Functional: functional}
		if override, ok := overrides[symbol]; ok {
			if override.Name != "" {
				filter.Name = override.Name
			}
			filter.Version = override.Version
		}
		matches, err := s.Find(filter)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, pkgerrors.Wrapf(ErrPotentialNotFound,
				"element %s (name %s, functional %s)", symbol, filter.Name, functional)
		}
		// matches are sorted newest version first
		r := matches[0]
		refs[symbol] = Reference{
			Name:       r.Name,
			Element:    r.Element,
			Functional: r.Functional,
			Version:    r.Version,
			UUID:       r.UUID,
			Hash:       r.Hash,
		}
	}
	return refs, nil
}

// OverridesFromNames converts a bare list of potential names into the
// per-element override map. The element is parsed from the leading symbol
// of each name; duplicate elements are rejected.
func OverridesFromNames(names []string) (map[string]Override, error) {
	overrides := make(map[string]Override, len(names))
	for _, name := range names {
		element, ok := vasp.ElementFromPotentialName(name)
		if !ok {
			return nil, fmt.Errorf("unable to parse the element from potential name %q", name)
		}
		if _, dup := overrides[element]; dup {
			return nil, fmt.Errorf("multiple potential names given for element %s", element)
		}
		overrides[element] = Override{Name: name}
	}
	return overrides, nil
}

// AssemblePotcar resolves the per-element references and concatenates the
// payloads in the site-symbol order of the structure.
func (s *Store) AssemblePotcar(poscar *vasp.Poscar, refs map[string]Reference) ([]byte, error) {
	payloads := make(map[string][]byte, len(refs))
	for element, ref := range refs {
		payload, err := s.Resolve(ref)
		if err != nil {
			return nil, err
		}
		payloads[element] = payload
	}
	return vasp.AssemblePotcar(poscar, payloads)
}
