package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nearbymesh/nearby/pkg/identifiers"
)

func TestOpen_MissingFileStartsAtZero(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.CurrentNearbyNamespace(); ok {
		t.Error("expected no remembered namespace on first run")
	}
	if s.ShareNearbyPublicBio() {
		t.Error("expected share-bio to default false")
	}
}

func TestSetCurrentNearbyNamespace_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	ns := identifiers.Derive([]byte("test-namespace"))
	if err := s.SetCurrentNearbyNamespace(context.Background(), ns); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := reopened.CurrentNearbyNamespace()
	if !ok {
		t.Fatal("expected a remembered namespace after reopen")
	}
	if got.Compare(ns) != 0 {
		t.Errorf("namespace = %s, want %s", got, ns)
	}
}

func TestSetShareNearbyPublicBio_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetShareNearbyPublicBio(true); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.ShareNearbyPublicBio() {
		t.Error("expected share-bio true after reopen")
	}
}

func TestOpen_CorruptFileIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")
	if err := os.WriteFile(path, []byte("not: [valid: yaml: {{{"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error for corrupt state file")
	}
}

func TestWrite_NoLeftoverTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetShareNearbyPublicBio(true); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected temp file to be renamed away, not left behind")
	}
}
