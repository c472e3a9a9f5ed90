package potcar

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cusptools/cusp/pkg/vasp"
)

func fakePotential(title, element string) []byte {
	return []byte(title + "\n" +
		" parameters from PSCTR are:\n" +
		"   VRHFIN =" + element + ": groundstate config\n" +
		"   TITEL  = " + title + "\n" +
		"END of PSCTR-controll parameters\n" +
		" local part\n" +
		"  0.17 0.23 0.42\n")
}

func writePotentialFile(t *testing.T, dir string, contents []byte) string {
	t.Helper()
	path := filepath.Join(dir, vasp.PotcarName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, contents, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "potentials"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return store
}

func addPotential(t *testing.T, store *Store, name, functional string, contents []byte) *Record {
	t.Helper()
	path := writePotentialFile(t, t.TempDir(), contents)
	pending, err := store.Prepare(path, name, functional)
	if err != nil {
		t.Fatalf("Prepare(%s) returned error: %v", name, err)
	}
	record, err := store.Commit(pending)
	if err != nil {
		t.Fatalf("Commit(%s) returned error: %v", name, err)
	}
	return record
}

func TestStoreAddAndFind(t *testing.T) {
	store := openTestStore(t)
	record := addPotential(t, store, "Si", "pbe", fakePotential("PAW_PBE Si 05Jan2001", "Si"))

	if record.Element != "Si" || record.Version != 20010105 {
		t.Fatalf("unexpected record %+v", record)
	}

	matches, err := store.Find(Filter{Name: "Si", Functional: "pbe"})
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if len(matches) != 1 || matches[0].UUID != record.UUID {
		t.Fatalf("Find returned %v", matches)
	}

	contents, err := store.Contents(record.UUID)
	if err != nil {
		t.Fatalf("Contents returned error: %v", err)
	}
	if string(contents) != string(fakePotential("PAW_PBE Si 05Jan2001", "Si")) {
		t.Fatalf("stored contents differ from the source file")
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "potentials")
	store, err := Open(root)
	if err != nil {
		t.Fatal(err)
	}
	record := addPotential(t, store, "Si", "pbe", fakePotential("PAW_PBE Si 05Jan2001", "Si"))

	reopened, err := Open(root)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	got, err := reopened.Get(record.UUID)
	if err != nil {
		t.Fatalf("Get after reopen returned error: %v", err)
	}
	if got.Hash != record.Hash {
		t.Fatalf("record changed across reopen")
	}
}

func TestStoreRejectsDuplicates(t *testing.T) {
	store := openTestStore(t)
	contents := fakePotential("PAW_PBE Si 05Jan2001", "Si")
	addPotential(t, store, "Si", "pbe", contents)

	// same identifiers, same contents
	path := writePotentialFile(t, t.TempDir(), contents)
	if _, err := store.Prepare(path, "Si", "pbe"); !errors.Is(err, ErrPotentialExists) {
		t.Fatalf("expected ErrPotentialExists, got %v", err)
	}

	// same identifiers, different contents
	conflicting := append(fakePotential("PAW_PBE Si 05Jan2001", "Si"), []byte("  0.99\n")...)
	path = writePotentialFile(t, t.TempDir(), conflicting)
	if _, err := store.Prepare(path, "Si", "pbe"); !errors.Is(err, ErrPotentialConflict) {
		t.Fatalf("expected ErrPotentialConflict, got %v", err)
	}
}

func TestStoreCommitRechecksUniqueness(t *testing.T) {
	store := openTestStore(t)
	contents := fakePotential("PAW_PBE Si 05Jan2001", "Si")

	// two uploads of the same file pass Prepare before either commits
	first, err := store.Prepare(writePotentialFile(t, t.TempDir(), contents), "Si", "pbe")
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	second, err := store.Prepare(writePotentialFile(t, t.TempDir(), contents), "Si", "pbe")
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	if _, err := store.Commit(first); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if _, err := store.Commit(second); !errors.Is(err, ErrPotentialExists) {
		t.Fatalf("expected ErrPotentialExists from the second commit, got %v", err)
	}
	matches, err := store.Find(Filter{Name: "Si", Functional: "pbe"})
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d records after the duplicate commit, want 1", len(matches))
	}
}

func TestStoreValidatesIdentifiers(t *testing.T) {
	store := openTestStore(t)
	path := writePotentialFile(t, t.TempDir(), fakePotential("PAW_PBE Si 05Jan2001", "Si"))

	if _, err := store.Prepare(path, "Si", "b3lyp"); err == nil {
		t.Errorf("expected an error for an unknown functional")
	}
	if _, err := store.Prepare(path, "Xy_sv", "pbe"); err == nil {
		t.Errorf("expected an error for an unparsable potential name")
	}
}

func TestFindRequiresFilter(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Find(Filter{}); !errors.Is(err, ErrEmptyFilter) {
		t.Fatalf("expected ErrEmptyFilter, got %v", err)
	}
}

func TestFindSortsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	addPotential(t, store, "Si", "pbe", fakePotential("PAW_PBE Si 05Jan2001", "Si"))
	addPotential(t, store, "Si", "pbe", fakePotential("PAW_PBE Si 02Feb2005", "Si"))

	matches, err := store.Find(Filter{Name: "Si"})
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Version != 20050202 {
		t.Fatalf("newest version first, got %d", matches[0].Version)
	}
}
