// Package fingerprint computes content hashes of uploaded recordings for
// duplicate-upload detection.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Size of the hex digest kept in the database. The full SHA-256 is
// truncated; 16 hex chars (64 bits) is plenty for a per-band library.
const Size = 16

// FromReader hashes the full content of r.
func FromReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:Size], nil
}

// FromFile hashes the content of the file at path without loading it into
// memory at once.
func FromFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for fingerprint: %w", err)
	}
	defer f.Close()
	return FromReader(f)
}
