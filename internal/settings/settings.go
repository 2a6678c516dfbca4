// Package settings implements the Settings Service: the small on-disk state file remembering which
// nearby document to reopen on restart and whether the local bio gets
// shared into it. The write path is the same atomic temp-file-then-rename
// shape the node configuration loader uses to protect its last-known-good
// archive (internal/config/archive.go).
package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nearbymesh/nearby/pkg/identifiers"
)

// fileState is the on-disk shape of the state file.
type fileState struct {
	CurrentNearbyDocID  string `yaml:"current_nearby_doc_id,omitempty"`
	ShareNearbyPublicBio bool   `yaml:"share_nearby_public_bio"`
}

// Store persists and serves the settings a host application and the
// Nearby Service share: the remembered active document namespace and the share-bio flag ("share_nearby_public_bio").
// Safe for concurrent use.
type Store struct {
	path string

	mu    sync.Mutex
	state fileState
}

// Open loads path if it exists, or starts from zero state if it doesn't
// (first run). A corrupt file is a hard error — callers decide whether to
// discard it or surface it to an operator.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return s, nil
}

// CurrentNearbyNamespace implements nearby.SettingsStore.
func (s *Store) CurrentNearbyNamespace() (identifiers.WideId, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CurrentNearbyDocID == "" {
		return identifiers.WideId{}, false
	}
	id, err := identifiers.ParseWideId(s.state.CurrentNearbyDocID)
	if err != nil {
		return identifiers.WideId{}, false
	}
	return id, true
}

// SetCurrentNearbyNamespace implements nearby.SettingsStore: persists ns
// as the document to reopen on the next restart.
func (s *Store) SetCurrentNearbyNamespace(_ context.Context, ns identifiers.WideId) error {
	s.mu.Lock()
	s.state.CurrentNearbyDocID = ns.String()
	snapshot := s.state
	s.mu.Unlock()
	return s.write(snapshot)
}

// ShareNearbyPublicBio implements nearby.SettingsStore.
func (s *Store) ShareNearbyPublicBio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ShareNearbyPublicBio
}

// SetShareNearbyPublicBio is the host-facing setter for the bio-sharing
// flag.
func (s *Store) SetShareNearbyPublicBio(share bool) error {
	s.mu.Lock()
	s.state.ShareNearbyPublicBio = share
	snapshot := s.state
	s.mu.Unlock()
	return s.write(snapshot)
}

// write persists state atomically: write to a temp file in the same
// directory, then rename over the target, so a crash mid-write never
// leaves a truncated state file behind.
func (s *Store) write(state fileState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("settings: create state dir: %w", err)
	}
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("settings: write temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}
