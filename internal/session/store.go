package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rescale/drivectl/internal/config"
	"github.com/rescale/drivectl/internal/models"
)

// Store persists the token and the profile snapshot between runs.
type Store interface {
	LoadToken() (string, error)
	SaveToken(token string) error
	ClearToken() error

	LoadProfile() (*models.UserProfile, error)
	SaveProfile(p *models.UserProfile) error
	ClearProfile() error
}

// FileStore keeps the token and profile in two owner-only files.
type FileStore struct {
	TokenPath   string
	ProfilePath string
}

// NewFileStore returns a FileStore for the configured session paths.
func NewFileStore(cfg *config.Config) *FileStore {
	return &FileStore{TokenPath: cfg.TokenFile, ProfilePath: cfg.ProfileFile}
}

// LoadToken returns "" with no error when no token is stored.
func (s *FileStore) LoadToken() (string, error) {
	token, err := config.ReadTokenFile(s.TokenPath)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, config.ErrTokenFileEmpty) {
		return "", nil
	}
	return token, err
}

func (s *FileStore) SaveToken(token string) error {
	return config.WriteTokenFile(s.TokenPath, token)
}

func (s *FileStore) ClearToken() error {
	return config.RemoveFile(s.TokenPath)
}

// LoadProfile returns nil with no error when no snapshot is stored.
func (s *FileStore) LoadProfile() (*models.UserProfile, error) {
	data, err := os.ReadFile(s.ProfilePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var p models.UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", s.ProfilePath, err)
	}
	return &p, nil
}

func (s *FileStore) SaveProfile(p *models.UserProfile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return config.WriteSecretFile(s.ProfilePath, data)
}

func (s *FileStore) ClearProfile() error {
	return config.RemoveFile(s.ProfilePath)
}

// MemoryStore keeps nothing on disk. Used by tests and --token runs.
type MemoryStore struct {
	Token   string
	Profile *models.UserProfile
}

func (m *MemoryStore) LoadToken() (string, error) { return m.Token, nil }
func (m *MemoryStore) SaveToken(t string) error   { m.Token = t; return nil }
func (m *MemoryStore) ClearToken() error          { m.Token = ""; return nil }

func (m *MemoryStore) LoadProfile() (*models.UserProfile, error) { return m.Profile, nil }
func (m *MemoryStore) SaveProfile(p *models.UserProfile) error   { m.Profile = p; return nil }
func (m *MemoryStore) ClearProfile() error                       { m.Profile = nil; return nil }
