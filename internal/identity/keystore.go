package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Keystore persists the serialized identity of one installation.
type Keystore interface {
	// Load returns the stored bytes, or an error wrapping os.ErrNotExist.
	Load() ([]byte, error)
	// Save atomically replaces the stored bytes.
	Save(data []byte) error
	// Delete removes the stored identity. Deleting a missing identity is not an error.
	Delete() error
}

// FileKeystore keeps the identity in a single file.
type FileKeystore struct {
	path string
}

// NewFileKeystore returns a keystore backed by path. The parent directory is
// created on first save.
func NewFileKeystore(path string) (*FileKeystore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("identity: resolve path: %w", err)
	}
	return &FileKeystore{path: abs}, nil
}

// Path returns the absolute file path.
func (k *FileKeystore) Path() string {
	return k.path
}

// Load reads the identity file.
func (k *FileKeystore) Load() ([]byte, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w", k.path, err)
	}
	return data, nil
}

// Save writes atomically: tmp file → fsync → rename. The file is private to
// the current user.
func (k *FileKeystore) Save(data []byte) error {
	dir := filepath.Dir(k.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("identity: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".hearsay-identity-*")
	if err != nil {
		return fmt.Errorf("identity: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("identity: chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("identity: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("identity: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("identity: close temp: %w", err)
	}
	if err := os.Rename(tmpName, k.path); err != nil {
		return fmt.Errorf("identity: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes the identity file.
func (k *FileKeystore) Delete() error {
	if err := os.Remove(k.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("identity: delete %s: %w", k.path, err)
	}
	return nil
}
