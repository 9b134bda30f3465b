package favorites_test

import (
	"path/filepath"
	"testing"

	"github.com/DarioTortorici/cinetech/favorites"
)

func TestAddIsIdempotent(t *testing.T) {
	store, err := favorites.Open(filepath.Join(t.TempDir(), "favorites.json"), nil)
	if err != nil {
		t.Fatal(err)
	}

	added, err := store.Add("s1", "603", "The Matrix")
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = store.Add("s1", "603", "The Matrix")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if added {
		t.Error("duplicate add must report added=false")
	}
	if got := store.List("s1"); len(got) != 1 {
		t.Errorf("expected 1 favorite, got %d", len(got))
	}
}

func TestRemoveAbsentIsNoOp(t *testing.T) {
	store, err := favorites.Open(filepath.Join(t.TempDir(), "favorites.json"), nil)
	if err != nil {
		t.Fatal(err)
	}

	removed, err := store.Remove("s1", "999")
	if err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	if removed {
		t.Error("removing an absent entry must report removed=false")
	}
}

func TestSessionPartitioning(t *testing.T) {
	store, err := favorites.Open(filepath.Join(t.TempDir(), "favorites.json"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Add("alice", "1", "Alien"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Add("bob", "2", "Heat"); err != nil {
		t.Fatal(err)
	}

	if got := store.List("alice"); len(got) != 1 || got[0].Title != "Alien" {
		t.Errorf("alice's favorites polluted: %+v", got)
	}
	if got := store.List("bob"); len(got) != 1 || got[0].Title != "Heat" {
		t.Errorf("bob's favorites polluted: %+v", got)
	}
	if got := store.List("carol"); len(got) != 0 {
		t.Errorf("unknown session must list empty, got %+v", got)
	}
}

func TestListOrderedByTimeAdded(t *testing.T) {
	store, err := favorites.Open(filepath.Join(t.TempDir(), "favorites.json"), nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, m := range []struct{ id, title string }{
		{"3", "Third"}, {"1", "First"}, {"2", "Second"},
	} {
		if _, err := store.Add("s1", m.id, m.title); err != nil {
			t.Fatal(err)
		}
	}

	got := store.List("s1")
	if len(got) != 3 {
		t.Fatalf("expected 3 favorites, got %d", len(got))
	}
	want := []string{"Third", "First", "Second"}
	for i := range want {
		if got[i].Title != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i].Title, want[i])
		}
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.json")

	store, err := favorites.Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Add("s1", "603", "The Matrix"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Add("s2", "78", "Blade Runner"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Remove("s2", "78"); err != nil {
		t.Fatal(err)
	}

	reopened, err := favorites.Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.List("s1"); len(got) != 1 || got[0].MovieID != "603" {
		t.Errorf("s1 favorites lost on reopen: %+v", got)
	}
	if got := reopened.List("s2"); len(got) != 0 {
		t.Errorf("removed favorite resurrected: %+v", got)
	}
}

func TestOpenMissingFile(t *testing.T) {
	store, err := favorites.Open(filepath.Join(t.TempDir(), "nope", "favorites.json"), nil)
	if err != nil {
		t.Fatalf("a missing file is a fresh store, not an error: %v", err)
	}
	if got := store.List("s1"); len(got) != 0 {
		t.Errorf("fresh store must be empty, got %+v", got)
	}
}
