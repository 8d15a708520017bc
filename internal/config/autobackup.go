package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// AutobackupRule is a standing backup configuration for one chat scope.
// An external trigger consults enabled rules and invokes the regular backup
// procedure with the stored destination.
type AutobackupRule struct {
	Scope    string `json:"scope"`
	DestPath string `json:"dest_path"`
	Enabled  bool   `json:"enabled"`
}

// AutobackupStore persists autobackup rules as a single JSON file.
// Safe for concurrent use.
type AutobackupStore struct {
	path  string
	mu    sync.Mutex
	rules map[string]AutobackupRule // keyed by scope
}

// NewAutobackupStore loads (or initializes) the rule file at path.
func NewAutobackupStore(path string) (*AutobackupStore, error) {
	s := &AutobackupStore{
		path:  path,
		rules: make(map[string]AutobackupRule),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read autobackup rules: %w", err)
	}

	var rules []AutobackupRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse autobackup rules: %w", err)
	}
	for _, r := range rules {
		s.rules[r.Scope] = r
	}
	return s, nil
}

// DefaultAutobackupStore opens the rule file under the data directory.
func DefaultAutobackupStore() (*AutobackupStore, error) {
	dataDir, err := DataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return NewAutobackupStore(filepath.Join(dataDir, "autobackup.json"))
}

// Set stores a rule for a scope and persists the file.
func (s *AutobackupStore) Set(rule AutobackupRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.Scope] = rule
	return s.saveLocked()
}

// Get returns the rule for a scope, if any.
func (s *AutobackupStore) Get(scope string) (AutobackupRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[scope]
	return r, ok
}

// Enabled returns all enabled rules.
func (s *AutobackupStore) Enabled() []AutobackupRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AutobackupRule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

func (s *AutobackupStore) saveLocked() error {
	rules := make([]AutobackupRule, 0, len(s.rules))
	for _, r := range s.rules {
		rules = append(rules, r)
	}

	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal autobackup rules: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write autobackup rules: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save autobackup rules: %w", err)
	}
	return nil
}
