// Package identityserv implements the Identity Service: the
// component owning the local user's signing key and the profile fields
// (display name, status, portrait, bio) it publishes into whichever
// document is currently active. Key load/create follows a
// load-existing-or-generate-and-save shape, generalized from a libp2p
// peer identity to an author profile key.
package identityserv

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/libp2p/go-libp2p/core/crypto"
	"gopkg.in/yaml.v3"

	"github.com/nearbymesh/nearby/pkg/identifiers"
	"github.com/nearbymesh/nearby/pkg/model"
)

// checkKeyFilePermissions verifies that a key file is not readable by
// group or others.
func checkKeyFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil // Windows file permissions work differently
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat key file %s: %w", path, err)
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %04o (expected 0600); fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// loadOrCreateKey loads an existing Ed25519 private key from path, or
// generates and saves a new one.
func loadOrCreateKey(path string) (crypto.PrivKey, error) {
	if data, err := os.ReadFile(path); err == nil {
		if err := checkKeyFilePermissions(path); err != nil {
			return nil, err
		}
		priv, err := crypto.UnmarshalPrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal key from %s: %w", path, err)
		}
		return priv, nil
	}

	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	data, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to save key to %s: %w", path, err)
	}
	return priv, nil
}

// authorFromKey derives a content-addressed Author id from a public key's
// raw bytes, so the same key always yields the same Author regardless of
// which document it ever signs into.
func authorFromKey(pub crypto.PubKey) (identifiers.WideId, error) {
	raw, err := pub.Raw()
	if err != nil {
		return identifiers.Zero, fmt.Errorf("failed to extract raw public key: %w", err)
	}
	return identifiers.Derive(raw), nil
}

// profile is the on-disk shape of the mutable fields.
type profile struct {
	Name         string              `yaml:"name"`
	StatusText   string              `yaml:"status_text,omitempty"`
	PortraitHash *identifiers.WideId `yaml:"portrait_hash,omitempty"`
	PortraitSize uint64              `yaml:"portrait_size,omitempty"`
	BioHash      *identifiers.WideId `yaml:"bio_hash,omitempty"`
}

// Service owns the local author's signing key and profile. It implements
// nearby.IdentityProvider. Safe for concurrent use.
type Service struct {
	key         crypto.PrivKey
	author      identifiers.WideId
	profilePath string

	mu sync.Mutex
	p  profile
}

// Open loads (or generates) the signing key at keyPath and loads (or
// starts zero-valued) the profile at profilePath.
func Open(keyPath, profilePath string) (*Service, error) {
	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}
	author, err := authorFromKey(key.GetPublic())
	if err != nil {
		return nil, err
	}

	s := &Service{key: key, author: author, profilePath: profilePath}
	if data, err := os.ReadFile(profilePath); err == nil {
		if err := yaml.Unmarshal(data, &s.p); err != nil {
			return nil, fmt.Errorf("identityserv: parse profile %s: %w", profilePath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identityserv: read profile %s: %w", profilePath, err)
	}
	return s, nil
}

// Author implements nearby.IdentityProvider.
func (s *Service) Author() identifiers.WideId { return s.author }

// Identity implements nearby.IdentityProvider.
func (s *Service) Identity() model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Identity{PK: s.author, Name: s.p.Name}
}

// Status implements nearby.IdentityProvider.
func (s *Service) Status() model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Status{Text: s.p.StatusText}
}

// Portrait implements nearby.IdentityProvider. Returns nil when no
// portrait has been set.
func (s *Service) Portrait() *model.Portrait {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p.PortraitHash == nil {
		return nil
	}
	return &model.Portrait{Hash: *s.p.PortraitHash, Size: s.p.PortraitSize}
}

// Bio implements nearby.IdentityProvider. Returns nil when no bio has been
// set, independent of whether the settings flag permits sharing it.
func (s *Service) Bio() *identifiers.WideId {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.BioHash
}

// SetName updates the display name and persists it.
func (s *Service) SetName(name string) error {
	s.mu.Lock()
	s.p.Name = name
	snapshot := s.p
	s.mu.Unlock()
	return s.save(snapshot)
}

// SetStatus updates the status text and persists it.
func (s *Service) SetStatus(text string) error {
	s.mu.Lock()
	s.p.StatusText = text
	snapshot := s.p
	s.mu.Unlock()
	return s.save(snapshot)
}

// SetPortrait records a portrait blob reference and persists it.
func (s *Service) SetPortrait(hash identifiers.WideId, size uint64) error {
	s.mu.Lock()
	s.p.PortraitHash = &hash
	s.p.PortraitSize = size
	snapshot := s.p
	s.mu.Unlock()
	return s.save(snapshot)
}

// SetBio records a bio collection reference and persists it.
func (s *Service) SetBio(hash identifiers.WideId) error {
	s.mu.Lock()
	s.p.BioHash = &hash
	snapshot := s.p
	s.mu.Unlock()
	return s.save(snapshot)
}

func (s *Service) save(p profile) error {
	if err := os.MkdirAll(filepath.Dir(s.profilePath), 0700); err != nil {
		return fmt.Errorf("identityserv: create profile dir: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("identityserv: encode profile: %w", err)
	}
	tmp := s.profilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("identityserv: write temp: %w", err)
	}
	if err := os.Rename(tmp, s.profilePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("identityserv: rename: %w", err)
	}
	return nil
}
