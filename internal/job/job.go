// Package job tracks asynchronous detection runs. A job is created when an
// upload or reprocess request is accepted and moves through
// pending → processing → completed/failed; both terminal states are final
// and a failed run is retried by issuing a new request, never resumed.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusPending indicates the job is waiting to start.
	StatusPending Status = "pending"
	// StatusProcessing indicates detection is running.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the session's tracks were replaced.
	StatusCompleted Status = "completed"
	// StatusFailed indicates detection failed; no tracks were written.
	StatusFailed Status = "failed"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents one detection run over a session's source recording.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// SessionID is the session whose tracks this run replaces.
	SessionID int64
	// Status is the current job state.
	Status Status
	// Error contains a human-readable message when the job failed.
	Error string
	// TrackCount is the number of tracks produced on completion.
	TrackCount int
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a pending Job for a session.
func New(sessionID int64) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusProcessing:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from pending to processing.
func (j *Job) Start() error {
	return j.TransitionTo(StatusProcessing)
}

// Complete transitions the job to completed and records the track count.
func (j *Job) Complete(trackCount int) error {
	j.mu.Lock()
	j.TrackCount = trackCount
	j.mu.Unlock()
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to failed with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job can no longer change state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		SessionID:   j.SessionID,
		Status:      j.Status,
		Error:       j.Error,
		TrackCount:  j.TrackCount,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
