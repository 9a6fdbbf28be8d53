package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gardenbot/internal/store"
	"gardenbot/pkg/logx"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	r, err := Load(st, logx.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return r, st
}

func TestAddRemoveTerms(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	added, err := r.Add("42", "  Rock Candy ")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !added {
		t.Fatal("first Add returned false")
	}

	// Normalized duplicates are rejected.
	added, err = r.Add("42", "rock candy")
	if err != nil {
		t.Fatalf("Add dup: %v", err)
	}
	if added {
		t.Fatal("duplicate Add returned true")
	}

	terms := r.Terms("42")
	if len(terms) != 1 || terms[0] != "rock candy" {
		t.Fatalf("Terms = %+v", terms)
	}

	removed, err := r.Remove("42", "ROCK CANDY")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("Remove returned false for present term")
	}
	if removed, _ := r.Remove("42", "rock candy"); removed {
		t.Fatal("Remove returned true for absent term")
	}
	if terms := r.Terms("42"); len(terms) != 0 {
		t.Fatalf("expected empty terms, got %+v", terms)
	}
}

func TestAddRejectsEmptyInput(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)

	if _, err := r.Add("", "carrot"); err == nil {
		t.Fatal("expected error for empty subscriber")
	}
	if _, err := r.Add("42", "   "); err == nil {
		t.Fatal("expected error for blank term")
	}
}

func TestMutationsPersistAcrossReload(t *testing.T) {
	t.Parallel()
	r, st := newTestRegistry(t)

	if _, err := r.Add("42", "carrot"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Add("42", "melon"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Add("7", "rock"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Remove("42", "carrot"); err != nil {
		t.Fatal(err)
	}

	// A second registry over the same store sees the same state.
	r2, err := Load(st, logx.Nop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	view := r2.View()
	if len(view) != 2 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if len(view["42"]) != 1 || view["42"][0] != "melon" {
		t.Fatalf("subscriber 42 state wrong: %+v", view["42"])
	}
	if len(view["7"]) != 1 || view["7"][0] != "rock" {
		t.Fatalf("subscriber 7 state wrong: %+v", view["7"])
	}
}

func TestViewIsACopy(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	if _, err := r.Add("42", "carrot"); err != nil {
		t.Fatal(err)
	}

	view := r.View()
	view["42"][0] = "mutated"
	view["99"] = []string{"injected"}

	if terms := r.Terms("42"); terms[0] != "carrot" {
		t.Fatalf("registry shares memory with View: %+v", terms)
	}
	if terms := r.Terms("99"); len(terms) != 0 {
		t.Fatalf("registry picked up injected subscriber: %+v", terms)
	}
}

func TestLoadCorruptDocumentDegrades(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "watchlists.json"), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := store.New(dir, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	r, err := Load(st, logx.Nop())
	if !errors.Is(err, store.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if r == nil {
		t.Fatal("corrupt load must still return a usable registry")
	}

	// The registry stays functional and the next mutation rewrites the file.
	if _, err := r.Add("42", "carrot"); err != nil {
		t.Fatalf("Add after corrupt load: %v", err)
	}
	if _, err := Load(st, logx.Nop()); err != nil {
		t.Fatalf("document still corrupt after write-through: %v", err)
	}
}
