package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when no job matches the lookup.
var ErrJobNotFound = errors.New("job not found")

// Repository stores detection jobs for status polling.
type Repository interface {
	// Save writes a job, replacing any earlier state under the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID returns the job with the given ID, or ErrJobNotFound.
	FindByID(ctx context.Context, id string) (*Job, error)

	// FindActiveBySession returns the pending or processing job for a
	// session, or ErrJobNotFound when nothing is running.
	FindActiveBySession(ctx context.Context, sessionID int64) (*Job, error)

	// List returns every known job.
	List(ctx context.Context) ([]*Job, error)
}
