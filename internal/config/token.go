package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrTokenFileEmpty is returned when the token file exists but holds no token.
var ErrTokenFileEmpty = errors.New("token file is empty")

// ReadTokenFile reads a bearer token from a file.
// The file should contain only the token (whitespace is trimmed).
// Warns if file permissions are too open (not 0600 on Unix systems).
func ReadTokenFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat token file: %w", err)
	}

	if mode := info.Mode().Perm(); mode&0077 != 0 {
		fmt.Fprintf(os.Stderr, "Warning: Token file %s has insecure permissions %04o. Consider using 'chmod 600 %s'\n", path, mode, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrTokenFileEmpty
	}
	return token, nil
}

// WriteTokenFile writes a token to a file with secure permissions (0600).
func WriteTokenFile(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("cannot write empty token")
	}
	return writeSecret(path, []byte(token+"\n"))
}

// WriteSecretFile writes arbitrary data owner-readable only.
// Used for the cached profile snapshot.
func WriteSecretFile(path string, data []byte) error {
	return writeSecret(path, data)
}

// RemoveFile deletes a persisted session file. A missing file is not an error.
func RemoveFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func writeSecret(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("no path configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
