// Package bootstrap provides dependency initialization for the jam session
// splitter server.
package bootstrap

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/jamsplit/jamsplit/internal/audio"
	"github.com/jamsplit/jamsplit/internal/config"
	"github.com/jamsplit/jamsplit/internal/job"
	"github.com/jamsplit/jamsplit/internal/storage"
	"github.com/jamsplit/jamsplit/internal/store"
	"github.com/jamsplit/jamsplit/internal/takes"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Store   *store.Store
	Storage storage.Storage
	Takes   *takes.Service
	Jobs    job.Repository

	lock *flock.Flock
}

// NewDependencies initializes the database, storage backend, audio tooling,
// and take engine. It also takes an exclusive lock on the data directory so
// two server processes never edit the same take sets.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(cfg.DataDir, "jamsplit.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data dir lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is in use by another jamsplit process", cfg.DataDir)
	}

	st, err := store.Open(cfg.ResolvePath(cfg.DBPath))
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open database: %w", err)
	}

	backend, err := initStorage(cfg, logger)
	if err != nil {
		_ = lock.Unlock()
		_ = st.Close()
		return nil, err
	}

	ffmpeg := audio.NewFFmpeg("")
	svc := takes.NewService(st, backend, ffmpeg, ffmpeg, cfg, logger)

	return &Dependencies{
		Store:   st,
		Storage: backend,
		Takes:   svc,
		Jobs:    job.NewMemoryRepository(),
		lock:    lock,
	}, nil
}

// Close releases the data directory lock and the database.
func (d *Dependencies) Close() error {
	var firstErr error
	if err := d.Store.Close(); err != nil {
		firstErr = err
	}
	if err := d.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3, err := storage.NewS3(cfg.DataDir, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3, nil
	}

	local, err := storage.NewLocal(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured", slog.String("data_dir", cfg.DataDir))
	return local, nil
}
