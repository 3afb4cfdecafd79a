// Package storage provides artifact storage behind a single interface with
// local-disk and S3-compatible (AWS S3, Cloudflare R2) implementations.
// Keys are data-dir-relative paths; the local backend treats the key as the
// file location, the remote backend mirrors keys into a bucket and keeps
// local working copies for ffmpeg to read.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotRemote is returned for presign operations on the local backend.
var ErrNotRemote = errors.New("storage backend is not remote")

// DefaultPresignTTL is how long presigned GET URLs stay valid.
const DefaultPresignTTL = time.Hour

// UploadPresignTTL is how long presigned PUT URLs stay valid.
const UploadPresignTTL = 15 * time.Minute

// Storage is the artifact storage port.
type Storage interface {
	// IsRemote reports whether artifacts live in a remote bucket.
	IsRemote() bool

	// Put uploads the local file at path under the given key.
	// No-op for the local backend, where the file already is the artifact.
	Put(ctx context.Context, key, path string) error

	// Fetch ensures the object behind key is available as a local file and
	// returns its path. Downloads from the bucket if needed.
	Fetch(ctx context.Context, key string) (string, error)

	// Delete removes the object and any local copy. Missing objects are
	// not an error.
	Delete(ctx context.Context, key string) error

	// Rename moves an object to a new key, keeping any local copy in sync.
	Rename(ctx context.Context, oldKey, newKey string) error

	// Exists reports whether the object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// PresignGet returns a time-limited URL for reading the object, or
	// ErrNotRemote for the local backend.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)

	// PresignPut returns a time-limited URL for writing the object
	// directly, or ErrNotRemote for the local backend.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}
