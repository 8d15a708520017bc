package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/olbridge/olbridge/internal/pathutil"
)

// UserRecord is the per-identity credential record used in per-user mode.
// One JSON file per identity under <data>/users/.
type UserRecord struct {
	ServerURL          string `json:"server_url"`
	PublicURL          string `json:"public_url,omitempty"`
	FixedBaseDirectory string `json:"fixed_base_directory,omitempty"`
	Username           string `json:"username,omitempty"`
	Password           string `json:"password,omitempty"`
	Token              string `json:"token,omitempty"`
	SetupCompleted     bool   `json:"setup_completed"`
}

// IsConfigured reports whether the record holds a usable connection.
func (r *UserRecord) IsConfigured() bool {
	return r.SetupCompleted && r.ServerURL != ""
}

// UserStore persists per-identity credential records.
type UserStore struct {
	dir string
}

// NewUserStore creates a store rooted at dir, creating it if needed.
func NewUserStore(dir string) (*UserStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create user store directory: %w", err)
	}
	return &UserStore{dir: dir}, nil
}

// DefaultUserStore creates the store under the olbridge data directory.
func DefaultUserStore() (*UserStore, error) {
	dataDir, err := DataDir()
	if err != nil {
		return nil, err
	}
	return NewUserStore(filepath.Join(dataDir, "users"))
}

func (s *UserStore) recordPath(identity string) string {
	// Identities come from the chat platform; never trust them as filenames.
	return filepath.Join(s.dir, pathutil.SanitizeFilename(identity)+".json")
}

// Load reads the record for an identity. A missing file yields an empty
// record and no error.
func (s *UserStore) Load(identity string) (*UserRecord, error) {
	data, err := os.ReadFile(s.recordPath(identity))
	if err != nil {
		if os.IsNotExist(err) {
			return &UserRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read user record: %w", err)
	}

	var rec UserRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse user record for %s: %w", identity, err)
	}
	return &rec, nil
}

// Save writes the record for an identity atomically.
func (s *UserStore) Save(identity string, rec *UserRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user record: %w", err)
	}

	path := s.recordPath(identity)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write user record: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set user record permissions: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save user record: %w", err)
	}
	return nil
}

// Delete removes the record for an identity. Missing records are a no-op.
func (s *UserStore) Delete(identity string) error {
	err := os.Remove(s.recordPath(identity))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete user record: %w", err)
	}
	return nil
}
