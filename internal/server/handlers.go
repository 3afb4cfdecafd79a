package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jamsplit/jamsplit/internal/audio"
	"github.com/jamsplit/jamsplit/internal/config"
	"github.com/jamsplit/jamsplit/internal/faults"
	"github.com/jamsplit/jamsplit/internal/fingerprint"
	"github.com/jamsplit/jamsplit/internal/job"
	"github.com/jamsplit/jamsplit/internal/storage"
	"github.com/jamsplit/jamsplit/internal/store"
	"github.com/jamsplit/jamsplit/internal/takes"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	store              *store.Store
	takes              *takes.Service
	jobs               job.Repository
	storage            storage.Storage
	cfg                *config.Config
	validate           *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background detection. When
// disabled, uploads only create the session and job and return immediately
// without starting detection.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st *store.Store, tk *takes.Service, jobs job.Repository, sto storage.Storage, cfg *config.Config, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		store:              st,
		takes:              tk,
		jobs:               jobs,
		storage:            sto,
		cfg:                cfg,
		validate:           validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Upload handles POST /api/sessions/upload: a multipart recording upload
// that creates a session and starts a background detection job.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.cfg.MaxUploadMB)<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_MULTIPART")
		return
	}

	groupID, err := strconv.ParseInt(r.FormValue("group_id"), 10, 64)
	if err != nil || groupID < 1 {
		writeError(w, http.StatusBadRequest, "group_id is required", "VALIDATION_ERROR")
		return
	}
	if _, err := h.store.GetGroup(r.Context(), groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found", "NOT_FOUND")
			return
		}
		h.writeFault(w, err)
		return
	}

	opts, ok := h.detectionOptions(w, r.FormValue("threshold"), r.FormValue("min_duration"), r.FormValue("single"))
	if !ok {
		return
	}
	force := parseBool(r.FormValue("force"))

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required", "VALIDATION_ERROR")
		return
	}
	defer file.Close()

	key, absPath, err := h.saveUpload(file, header.Filename)
	if err != nil {
		h.logger.Error("upload save failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store upload", "STORAGE_ERROR")
		return
	}

	fp, err := fingerprint.FromFile(absPath)
	if err != nil {
		_ = os.Remove(absPath)
		writeError(w, http.StatusInternalServerError, "failed to fingerprint upload", "STORAGE_ERROR")
		return
	}

	if dup, err := h.store.FindSessionByFingerprint(r.Context(), groupID, fp); err == nil && !force {
		_ = os.Remove(absPath)
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: fmt.Sprintf("recording already uploaded as session %d; pass force=true to add anyway", dup.ID),
			Code:  "DUPLICATE",
		})
		return
	}

	if err := h.storage.Put(r.Context(), key, absPath); err != nil {
		_ = os.Remove(absPath)
		h.writeFault(w, faults.Wrap(faults.KindStorage, err, "upload source"))
		return
	}

	date := audio.RecordedDate(absPath)
	if date == nil {
		date = store.DateFromFilename(header.Filename)
	}

	sessionID, err := h.store.CreateSession(r.Context(), store.CreateSessionParams{
		GroupID:     groupID,
		SourceFile:  key,
		Date:        date,
		Fingerprint: fp,
	})
	if err != nil {
		_ = os.Remove(absPath)
		h.writeFault(w, err)
		return
	}

	h.startDetection(w, r, sessionID, opts)
}

// UploadInit handles POST /api/sessions/upload/init: it reserves a storage
// key and returns a presigned PUT URL so large recordings bypass the API.
func (h *Handlers) UploadInit(w http.ResponseWriter, r *http.Request) {
	var req UploadInitRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.store.GetGroup(r.Context(), req.GroupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found", "NOT_FOUND")
			return
		}
		h.writeFault(w, err)
		return
	}

	base := filepath.Base(req.Filename)
	key := filepath.Join(h.cfg.InputDir, uuid.NewString()[:8]+"_"+base)

	uploadURL, err := h.storage.PresignPut(r.Context(), key, req.ContentType, storage.UploadPresignTTL)
	if err != nil {
		if errors.Is(err, storage.ErrNotRemote) {
			writeError(w, http.StatusBadRequest,
				"presigned uploads require remote storage; use POST /api/sessions/upload", "PRESIGN_UNSUPPORTED")
			return
		}
		h.writeFault(w, faults.Wrap(faults.KindStorage, err, "presign upload"))
		return
	}

	sessionID, err := h.store.CreateSession(r.Context(), store.CreateSessionParams{
		GroupID:    req.GroupID,
		SourceFile: key,
		Date:       store.DateFromFilename(base),
	})
	if err != nil {
		h.writeFault(w, err)
		return
	}

	j := job.New(sessionID)
	if err := h.jobs.Save(r.Context(), j); err != nil {
		h.writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadInitResponse{
		JobID:     j.ID,
		SessionID: sessionID,
		UploadURL: uploadURL,
		Key:       key,
	})
}

// UploadComplete handles POST /api/sessions/upload/complete: the client has
// PUT the bytes to storage and detection can start.
func (h *Handlers) UploadComplete(w http.ResponseWriter, r *http.Request) {
	var req UploadCompleteRequest
	if !h.decode(w, r, &req) {
		return
	}

	j, err := h.jobs.FindByID(r.Context(), req.JobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
		return
	}
	if j.GetStatus() != job.StatusPending {
		writeError(w, http.StatusConflict, "upload already completed", "CONFLICT")
		return
	}

	session, err := h.store.GetSession(r.Context(), j.SessionID)
	if err != nil {
		h.writeFault(w, err)
		return
	}

	srcPath, err := h.storage.Fetch(r.Context(), session.SourceFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "uploaded recording not found in storage", "UPLOAD_MISSING")
		return
	}

	fp, err := fingerprint.FromFile(srcPath)
	if err != nil {
		h.writeFault(w, faults.Wrap(faults.KindStorage, err, "fingerprint upload"))
		return
	}
	if dup, err := h.store.FindSessionByFingerprint(r.Context(), session.GroupID, fp); err == nil && dup.ID != session.ID && !req.Force {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: fmt.Sprintf("recording already uploaded as session %d; pass force=true to add anyway", dup.ID),
			Code:  "DUPLICATE",
		})
		return
	}
	if err := h.store.UpdateSessionFingerprint(r.Context(), session.ID, fp); err != nil {
		h.writeFault(w, err)
		return
	}

	// The bytes were not around at init time; now that they are, the
	// container's date tag can fill in what the filename could not.
	if session.Date == nil {
		if date := audio.RecordedDate(srcPath); date != nil {
			if err := h.store.UpdateSessionDate(r.Context(), session.ID, date); err != nil {
				h.writeFault(w, err)
				return
			}
		}
	}

	opts := takes.ProcessOptions{
		ThresholdDB:    req.Threshold,
		MinDurationSec: req.MinDuration,
		SingleTrack:    req.Single,
	}
	h.runJob(r.Context(), j, opts)

	writeJSON(w, http.StatusAccepted, UploadResponse{
		JobID:     j.ID,
		SessionID: j.SessionID,
		Status:    string(j.GetStatus()),
	})
}

// GetJob handles GET /api/jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		h.writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(j))
}

// startDetection creates a pending job for the session, kicks off
// background detection, and writes the 202 response.
func (h *Handlers) startDetection(w http.ResponseWriter, r *http.Request, sessionID int64, opts takes.ProcessOptions) {
	if active, err := h.jobs.FindActiveBySession(r.Context(), sessionID); err == nil {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: fmt.Sprintf("detection job %s already running for session %d", active.ID, sessionID),
			Code:  "CONFLICT",
		})
		return
	}

	j := job.New(sessionID)
	if err := h.jobs.Save(r.Context(), j); err != nil {
		h.writeFault(w, err)
		return
	}

	h.runJob(r.Context(), j, opts)

	writeJSON(w, http.StatusAccepted, UploadResponse{
		JobID:     j.ID,
		SessionID: sessionID,
		Status:    string(j.GetStatus()),
	})
}

// runJob executes detection in the background with a detached context so
// the work survives the initiating request.
func (h *Handlers) runJob(ctx context.Context, j *job.Job, opts takes.ProcessOptions) {
	if !h.enableAsyncProcess {
		return
	}
	go func(ctx context.Context) {
		if err := j.Start(); err != nil {
			h.logger.Error("job start failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
			return
		}
		_ = h.jobs.Save(ctx, j)

		tracks, err := h.takes.Process(ctx, j.SessionID, opts)
		if err != nil {
			h.logger.Error("detection failed",
				slog.String("job_id", j.ID),
				slog.Int64("session_id", j.SessionID),
				slog.String("error", err.Error()),
			)
			_ = j.Fail(err.Error())
		} else {
			_ = j.Complete(len(tracks))
		}
		_ = h.jobs.Save(ctx, j)
	}(context.WithoutCancel(ctx))
}

// detectionOptions parses the optional form fields shared by the upload
// endpoints.
func (h *Handlers) detectionOptions(w http.ResponseWriter, threshold, minDuration, single string) (takes.ProcessOptions, bool) {
	var opts takes.ProcessOptions
	if threshold != "" {
		v, err := strconv.ParseFloat(threshold, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "threshold must be a number", "VALIDATION_ERROR")
			return opts, false
		}
		opts.ThresholdDB = &v
	}
	if minDuration != "" {
		v, err := strconv.Atoi(minDuration)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "min_duration must be a positive integer", "VALIDATION_ERROR")
			return opts, false
		}
		opts.MinDurationSec = &v
	}
	opts.SingleTrack = parseBool(single)
	return opts, true
}

// saveUpload writes the multipart file into the input directory and returns
// its storage key and absolute path. An existing file with the same name is
// never overwritten; the new upload gets a unique prefix instead.
func (h *Handlers) saveUpload(file io.Reader, filename string) (string, string, error) {
	base := filepath.Base(filename)
	key := filepath.Join(h.cfg.InputDir, base)
	absPath := h.cfg.ResolvePath(key)

	if _, err := os.Stat(absPath); err == nil {
		key = filepath.Join(h.cfg.InputDir, uuid.NewString()[:8]+"_"+base)
		absPath = h.cfg.ResolvePath(key)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0750); err != nil {
		return "", "", fmt.Errorf("create input directory: %w", err)
	}
	dst, err := os.Create(absPath)
	if err != nil {
		return "", "", fmt.Errorf("create %s: %w", absPath, err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(absPath)
		return "", "", fmt.Errorf("write %s: %w", absPath, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(absPath)
		return "", "", fmt.Errorf("close %s: %w", absPath, err)
	}
	return key, absPath, nil
}

// decode parses and validates a JSON request body.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeFault maps an error's fault kind to an HTTP status.
func (h *Handlers) writeFault(w http.ResponseWriter, err error) {
	switch faults.KindOf(err) {
	case faults.KindValidation:
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case faults.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case faults.KindConflict:
		writeError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case faults.KindDecode:
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "DECODE_ERROR")
	default:
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found", "NOT_FOUND")
			return
		}
		h.logger.Error("request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
