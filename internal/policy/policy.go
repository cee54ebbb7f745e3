// Package policy manages per-user auto-reply settings and custom prompts,
// persisted to a JSON file that is rewritten in full on every mutation.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// userConfig is the per-user record stored in the policy file.
type userConfig struct {
	CustomPrompt *string `json:"custom_prompt"`
}

// fileSchema is the on-disk layout of the policy file.
type fileSchema struct {
	UserConfig   map[string]userConfig `json:"user_config"`
	EnabledUsers []string              `json:"enabled_users"`
}

// Store holds the auto-reply policy table. All methods are safe for
// concurrent use; mutators write the full table to disk synchronously
// before returning.
type Store struct {
	mu      sync.Mutex
	path    string
	enabled map[string]struct{}
	users   map[string]userConfig
	logger  *slog.Logger
}

// NewStore loads the policy table from path. If the file does not exist, the
// store seeds itself from bootstrapUsers (a comma-separated identifier list)
// and writes the seeded state immediately.
func NewStore(path, bootstrapUsers string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Store{
		path:    path,
		enabled: make(map[string]struct{}),
		users:   make(map[string]userConfig),
		logger:  logger.With("component", "policy_store"),
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f fileSchema
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
		}
		for id, uc := range f.UserConfig {
			s.users[id] = uc
		}
		for _, id := range f.EnabledUsers {
			s.enabled[id] = struct{}{}
		}
		s.logger.Info("Policy loaded", "path", path, "users", len(s.users), "enabled", len(s.enabled))

	case errors.Is(err, fs.ErrNotExist):
		for _, id := range strings.Split(bootstrapUsers, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			s.enabled[id] = struct{}{}
			if _, ok := s.users[id]; !ok {
				s.users[id] = userConfig{}
			}
		}
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("failed to write initial policy file: %w", err)
		}
		s.logger.Info("Policy file created", "path", path, "seeded", len(s.enabled))

	default:
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	return s, nil
}

// save writes the full policy table to disk. The write goes through a
// temporary file and a rename so a crash mid-write cannot truncate the
// previous state. Callers must hold s.mu.
func (s *Store) save() error {
	f := fileSchema{
		UserConfig:   s.users,
		EnabledUsers: make([]string, 0, len(s.enabled)),
	}
	for id := range s.enabled {
		f.EnabledUsers = append(f.EnabledUsers, id)
	}
	sort.Strings(f.EnabledUsers)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create policy directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace policy file: %w", err)
	}
	return nil
}

// IsEnabled reports whether auto-reply is enabled for userID.
func (s *Store) IsEnabled(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.enabled[userID]
	return ok
}

// Enable turns on auto-reply for userID. Enabling is idempotent.
func (s *Store) Enable(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled[userID] = struct{}{}
	if _, ok := s.users[userID]; !ok {
		s.users[userID] = userConfig{}
	}
	return s.save()
}

// Disable turns off auto-reply for userID and reports whether the user was
// previously enabled. Disabling an already-disabled user does not touch disk.
func (s *Store) Disable(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.enabled[userID]; !ok {
		return false, nil
	}
	delete(s.enabled, userID)
	return true, s.save()
}

// SetPrompt stores the custom system prompt for userID verbatim.
func (s *Store) SetPrompt(userID, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uc := s.users[userID]
	uc.CustomPrompt = &prompt
	s.users[userID] = uc
	return s.save()
}

// GetPrompt returns the custom prompt for userID, if one is set.
func (s *Store) GetPrompt(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uc, ok := s.users[userID]
	if !ok || uc.CustomPrompt == nil {
		return "", false
	}
	return *uc.CustomPrompt, true
}

// ListEnabled returns the identifiers of all enabled users in sorted order.
func (s *Store) ListEnabled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.enabled))
	for id := range s.enabled {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
