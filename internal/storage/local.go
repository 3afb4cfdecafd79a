package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Compile-time check that Local implements Storage.
var _ Storage = (*Local)(nil)

// Local stores artifacts on the local filesystem under a base directory.
type Local struct {
	baseDir string
}

// NewLocal creates a Local storage rooted at baseDir.
// The directory is created if it doesn't exist.
func NewLocal(baseDir string) (*Local, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Local{baseDir: baseDir}, nil
}

// resolve maps a key to its on-disk path. Absolute keys pass through.
func (l *Local) resolve(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(l.baseDir, key)
}

// IsRemote reports false; files already live on local disk.
func (l *Local) IsRemote() bool { return false }

// Put is a no-op: the local file is the artifact.
func (l *Local) Put(_ context.Context, _, _ string) error { return nil }

// Fetch returns the local path for a key.
func (l *Local) Fetch(_ context.Context, key string) (string, error) {
	path := l.resolve(key)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("artifact %s: %w", key, err)
	}
	return path, nil
}

// Delete removes the file behind key. Missing files are not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	if err := os.Remove(l.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Rename moves the file behind oldKey to newKey.
func (l *Local) Rename(_ context.Context, oldKey, newKey string) error {
	oldPath, newPath := l.resolve(oldKey), l.resolve(newKey)
	if oldPath == newPath {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0750); err != nil {
		return fmt.Errorf("create directory for %s: %w", newKey, err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("rename %s: %w", oldKey, err)
	}
	return nil
}

// Exists reports whether the file behind key is present.
func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(l.resolve(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PresignGet is not supported by Local and returns ErrNotRemote.
func (l *Local) PresignGet(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", ErrNotRemote
}

// PresignPut is not supported by Local and returns ErrNotRemote.
func (l *Local) PresignPut(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	return "", ErrNotRemote
}
