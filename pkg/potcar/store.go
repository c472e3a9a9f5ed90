// Package potcar manages the local pseudo-potential library. Potentials are
// identified by the triple (name, functional, version) and stored as
// gzip-compressed payloads next to a JSON index; the copyrighted contents
// never leave the library except when a POTCAR is assembled for a run.
package potcar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cusptools/cusp/pkg/archive"
	"github.com/cusptools/cusp/pkg/vasp"
)

const (
	indexFileName = "index.json"
	filesDirName  = "files"
)

// Record describes one stored pseudo-potential.
type Record struct {
	UUID       string    `json:"uuid"`
	Name       string    `json:"name"`
	Element    string    `json:"element"`
	Functional string    `json:"functional"`
	Version    int       `json:"version"`
	Hash       string    `json:"hash"`
	AddedAt    time.Time `json:"addedAt"`
}

// Label returns the short display form "Li_sv pbe (v20130106)".
func (r Record) Label() string {
	return fmt.Sprintf("%s %s (v%d)", r.Name, r.Functional, r.Version)
}

// Pending is a parsed potential that passed the uniqueness check but has not
// been written to the library yet. The CLI shows pending potentials to the
// user before committing them.
type Pending struct {
	Record
	Path     string `json:"path"`
	contents []byte
}

type index struct {
	Potentials []Record `json:"potentials"`
}

// Store is the on-disk pseudo-potential library.
type Store struct {
	root string
	mu   sync.RWMutex
	idx  index
}

// Open loads the library at root, creating an empty one when the directory
// does not exist yet.
func Open(root string) (*Store, error) {
	s := &Store{root: root}
	if err := os.MkdirAll(filepath.Join(root, filesDirName), 0755); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create potential library at %s", root)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, indexFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logrus.Debugf("potential index %s does not exist yet, starting empty", path)
		s.idx = index{}
		return nil
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read potential index %s", path)
	}
	return pkgerrors.Wrapf(json.Unmarshal(data, &s.idx), "failed to parse potential index %s", path)
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(&s.idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.root, indexFileName), data, 0644)
}

func (s *Store) archivePath(id string) string {
	return filepath.Join(s.root, filesDirName, id+archive.Suffix)
}

// Prepare parses the potential file at path and checks it against the
// library. name is the qualified potential name (Li, Li_sv, Ge_pv_GW, ...)
// and functional one of the short functional identifiers.
func (s *Store) Prepare(path, name, functional string) (*Pending, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := vasp.ParsePotential(contents)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse potential file %s", path)
	}

	record := Record{
		UUID:       uuid.NewString(),
		Name:       name,
		Element:    info.Element,
		Functional: functional,
		Version:    info.Version,
		Hash:       info.Hash,
	}
	if err := validateRecord(record); err != nil {
		return nil, err
	}
	s.mu.RLock()
	err = s.checkUnique(record)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return &Pending{Record: record, Path: path, contents: contents}, nil
}

func validateRecord(r Record) error {
	element, ok := vasp.ElementFromPotentialName(r.Name)
	if !ok {
		return fmt.Errorf("unable to parse the element from potential name %q", r.Name)
	}
	if element != r.Element && !vasp.IsElement(r.Element) {
		return fmt.Errorf("invalid element name %q", r.Element)
	}
	if !vasp.IsFunctional(r.Functional) {
		return fmt.Errorf("functional %q is not valid (allowed: %v)", r.Functional, vasp.Functionals())
	}
	return vasp.ValidatePotentialVersion(r.Version)
}

// checkUnique enforces the (name, functional, version) identity. A stored
// potential with identical hash means the very same file; a different hash
// means conflicting contents under the same identifiers.
// checkUnique expects the caller to hold s.mu.
func (s *Store) checkUnique(r Record) error {
	matches := s.findLocked(Filter{Name: r.Name, Functional: r.Functional, Version: r.Version})
	if len(matches) == 0 {
		return nil
	}
	first := matches[0]
	if first.Hash == r.Hash {
		return pkgerrors.Wrapf(ErrPotentialExists, "stored at %s", first.UUID)
	}
	return pkgerrors.Wrapf(ErrPotentialConflict,
		"identifiers (%s, %s, %d) stored at %s; check the contents and change the identifiers if you know what you are doing",
		r.Name, r.Functional, r.Version, first.UUID)
}

// Commit writes a pending potential to the library.
func (s *Store) Commit(p *Pending) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// re-check under the write lock, the library may have changed since
	// Prepare and concurrent commits must not double-insert
	if err := s.checkUnique(p.Record); err != nil {
		return nil, err
	}
	if err := archive.StoreBytes(p.contents, s.archivePath(p.UUID)); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to store potential payload for %s", p.Name)
	}
	p.AddedAt = time.Now()
	s.idx.Potentials = append(s.idx.Potentials, p.Record)
	if err := s.save(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to save potential index")
	}
	logrus.Infof("stored potential %s with UUID %s", p.Label(), p.UUID)
	record := p.Record
	return &record, nil
}

// Filter restricts potential queries. Zero values leave the corresponding
// identifier unconstrained; at least one has to be set.
type Filter struct {
	Name       string `json:"name,omitempty"`
	Element    string `json:"element,omitempty"`
	Functional string `json:"functional,omitempty"`
	Version    int    `json:"version,omitempty"`
	Hash       string `json:"hash,omitempty"`
}

func (f Filter) empty() bool {
	return f == Filter{}
}

func (f Filter) matches(r Record) bool {
	if f.Name != "" && f.Name != r.Name {
		return false
	}
	if f.Element != "" && f.Element != r.Element {
		return false
	}
	if f.Functional != "" && f.Functional != r.Functional {
		return false
	}
	if f.Version != 0 && f.Version != r.Version {
		return false
	}
	if f.Hash != "" && f.Hash != r.Hash {
		return false
	}
	return true
}

// Find returns all stored potentials matching every constrained identifier,
// newest version first.
func (s *Store) Find(f Filter) ([]Record, error) {
	if f.empty() {
		return nil, ErrEmptyFilter
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(f), nil
}

// findLocked expects the caller to hold s.mu.
func (s *Store) findLocked(f Filter) []Record {
	var matches []Record
	for _, r := range s.idx.Potentials {
		if f.matches(r) {
			matches = append(matches, r)
		}
	}
	sort.Slice(matches, func(a, b int) bool {
		return matches[a].Version > matches[b].Version
	})
	return matches
}

// Get returns the record stored under the given UUID.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.idx.Potentials {
		if r.UUID == id {
			record := r
			return &record, nil
		}
	}
	return nil, pkgerrors.Wrapf(ErrPotentialNotFound, "uuid %s", id)
}

// Contents returns the decompressed potential payload stored under the
// given UUID.
func (s *Store) Contents(id string) ([]byte, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	return archive.Content(s.archivePath(id), false)
}

// All returns every stored record.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]Record, len(s.idx.Potentials))
	copy(records, s.idx.Potentials)
	return records
}
