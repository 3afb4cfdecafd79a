// Package server provides the HTTP API for the jam session splitter.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"github.com/jamsplit/jamsplit/internal/job"
	"github.com/jamsplit/jamsplit/internal/store"
)

// UploadResponse is returned after an upload is accepted for processing.
type UploadResponse struct {
	// JobID identifies the detection job to poll.
	JobID string `json:"job_id"`
	// SessionID is the provisional session created for the recording.
	SessionID int64 `json:"session_id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// UploadInitRequest asks for a presigned URL to upload a recording directly
// to storage.
type UploadInitRequest struct {
	// Filename is the original recording filename.
	Filename string `json:"filename" validate:"required"`
	// GroupID is the owning group.
	GroupID int64 `json:"group_id" validate:"required,min=1"`
	// ContentType of the upload, defaults by file extension.
	ContentType string `json:"content_type"`
}

// UploadInitResponse carries the presigned target for a direct upload.
type UploadInitResponse struct {
	JobID     string `json:"job_id"`
	SessionID int64  `json:"session_id"`
	// UploadURL is the presigned PUT URL the client uploads bytes to.
	UploadURL string `json:"upload_url"`
	// Key is the storage key the recording will live under.
	Key string `json:"key"`
}

// UploadCompleteRequest signals that a direct upload finished and detection
// should start.
type UploadCompleteRequest struct {
	JobID string `json:"job_id" validate:"required"`
	// Threshold overrides the detection threshold in dB.
	Threshold *float64 `json:"threshold" validate:"omitempty,min=-100,max=0"`
	// MinDuration overrides the minimum region duration in seconds.
	MinDuration *int `json:"min_duration" validate:"omitempty,min=1"`
	// Single skips detection and makes one track from the whole recording.
	Single bool `json:"single"`
	// Force accepts the upload even when its fingerprint matches an
	// existing session.
	Force bool `json:"force"`
}

// ReprocessRequest re-runs detection over a session's source recording.
type ReprocessRequest struct {
	Threshold   *float64 `json:"threshold" validate:"omitempty,min=-100,max=0"`
	MinDuration *int     `json:"min_duration" validate:"omitempty,min=1"`
	Single      bool     `json:"single"`
}

// SplitRequest splits a track at a point measured from the start of the
// session recording.
type SplitRequest struct {
	SplitAtSec float64 `json:"split_at_sec" validate:"required,gt=0"`
}

// MergeRequest merges a track with an adjacent one.
type MergeRequest struct {
	OtherTrackID int64 `json:"other_track_id" validate:"required,min=1"`
}

// TagRequest assigns a song to a track, creating the song by name.
type TagRequest struct {
	SongName string `json:"song_name" validate:"required"`
}

// NotesRequest replaces the notes on a track or session.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// NameRequest renames a session.
type NameRequest struct {
	Name string `json:"name" validate:"required"`
}

// DateRequest sets or clears a session date.
type DateRequest struct {
	// Date in YYYY-MM-DD form, null to clear.
	Date *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// CreateGroupRequest creates a new owning group.
type CreateGroupRequest struct {
	Name string `json:"name" validate:"required"`
}

// TrackResponse is the wire form of one take.
type TrackResponse struct {
	ID          int64   `json:"id"`
	SessionID   int64   `json:"session_id"`
	TrackNumber int     `json:"track_number"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	DurationSec float64 `json:"duration_sec"`
	SongID      *int64  `json:"song_id,omitempty"`
	SongName    *string `json:"song_name,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	AudioPath   string  `json:"audio_path"`
}

// SessionResponse is the wire form of a session with derived counts.
type SessionResponse struct {
	ID          int64   `json:"id"`
	GroupID     int64   `json:"group_id"`
	Name        string  `json:"name"`
	Date        *string `json:"date"`
	SourceFile  string  `json:"source_file"`
	Notes       string  `json:"notes,omitempty"`
	TrackCount  int     `json:"track_count"`
	TaggedCount int     `json:"tagged_count"`
	SongNames   string  `json:"song_names,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// SongResponse is the wire form of a song with take aggregates.
type SongResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Chart     string  `json:"chart,omitempty"`
	Lyrics    string  `json:"lyrics,omitempty"`
	Notes     string  `json:"notes,omitempty"`
	TakeCount int     `json:"take_count"`
	FirstDate *string `json:"first_date,omitempty"`
	LastDate  *string `json:"last_date,omitempty"`
}

// SongTakeResponse is one take listed under a song.
type SongTakeResponse struct {
	ID          int64   `json:"id"`
	SessionID   int64   `json:"session_id"`
	SessionName string  `json:"session_name"`
	SessionDate *string `json:"session_date"`
	TrackNumber int     `json:"track_number"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	DurationSec float64 `json:"duration_sec"`
	Notes       string  `json:"notes,omitempty"`
	AudioPath   string  `json:"audio_path"`
}

// GroupResponse is the wire form of a group.
type GroupResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// JobResponse is the HTTP response for job polling.
type JobResponse struct {
	ID         string `json:"id"`
	SessionID  int64  `json:"session_id"`
	Status     string `json:"status"`
	TrackCount int    `json:"track_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

func trackResponse(t store.Track) TrackResponse {
	return TrackResponse{
		ID:          t.ID,
		SessionID:   t.SessionID,
		TrackNumber: t.TrackNumber,
		StartSec:    t.StartSec,
		EndSec:      t.EndSec,
		DurationSec: t.DurationSec,
		SongID:      t.SongID,
		SongName:    t.SongName,
		Notes:       t.Notes,
		AudioPath:   t.AudioPath,
	}
}

func trackResponses(tracks []store.Track) []TrackResponse {
	out := make([]TrackResponse, len(tracks))
	for i, t := range tracks {
		out[i] = trackResponse(t)
	}
	return out
}

func sessionResponse(s store.Session) SessionResponse {
	return SessionResponse{
		ID:          s.ID,
		GroupID:     s.GroupID,
		Name:        s.Name,
		Date:        s.Date,
		SourceFile:  s.SourceFile,
		Notes:       s.Notes,
		TrackCount:  s.TrackCount,
		TaggedCount: s.TaggedCount,
		SongNames:   s.SongNames,
		CreatedAt:   s.CreatedAt,
	}
}

func jobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		SessionID:  j.SessionID,
		Status:     string(j.Status),
		TrackCount: j.TrackCount,
		Error:      j.Error,
	}
}
