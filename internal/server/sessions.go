package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jamsplit/jamsplit/internal/storage"
	"github.com/jamsplit/jamsplit/internal/store"
	"github.com/jamsplit/jamsplit/internal/takes"
)

// ListSessions handles GET /api/sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.writeFault(w, err)
		return
	}
	out := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = sessionResponse(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSession handles GET /api/sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id", "VALIDATION_ERROR")
		return
	}
	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(*session))
}

// DeleteSession handles DELETE /api/sessions/{id}: the session row, its
// tracks, every exported artifact, and the source recording all go.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id", "VALIDATION_ERROR")
		return
	}

	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		h.writeFault(w, err)
		return
	}

	paths, err := h.store.DeleteSession(r.Context(), id)
	if err != nil {
		h.writeFault(w, err)
		return
	}

	for _, p := range append(paths, session.SourceFile) {
		if err := h.storage.Delete(r.Context(), p); err != nil {
			h.logger.Warn("artifact cleanup failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// SessionTracks handles GET /api/sessions/{id}/tracks.
func (h *Handlers) SessionTracks(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id", "VALIDATION_ERROR")
		return
	}
	if _, err := h.store.GetSession(r.Context(), id); err != nil {
		h.writeFault(w, err)
		return
	}
	tracks, err := h.store.TracksForSession(r.Context(), id)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackResponses(tracks))
}

// SessionAudio handles GET /api/sessions/{id}/audio: it streams the source
// recording, or redirects to a presigned URL when storage is remote.
func (h *Handlers) SessionAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id", "VALIDATION_ERROR")
		return
	}
	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	h.serveArtifact(w, r, session.SourceFile)
}

// serveArtifact streams a stored audio object to the client.
func (h *Handlers) serveArtifact(w http.ResponseWriter, r *http.Request, key string) {
	if h.storage.IsRemote() {
		url, err := h.storage.PresignGet(r.Context(), key, storage.DefaultPresignTTL)
		if err != nil {
			h.writeFault(w, err)
			return
		}
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	path, err := h.storage.Fetch(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "audio artifact not found", "NOT_FOUND")
		return
	}
	http.ServeFile(w, r, path)
}

// RenameSession handles PUT /api/sessions/{id}/name.
func (h *Handlers) RenameSession(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id", "VALIDATION_ERROR")
		return
	}
	var req NameRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.store.UpdateSessionName(r.Context(), id, req.Name); err != nil {
		h.writeFault(w, err)
		return
	}
	h.respondSession(w, r, id)
}

// SetSessionDate handles PUT /api/sessions/{id}/date.
func (h *Handlers) SetSessionDate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id", "VALIDATION_ERROR")
		return
	}
	var req DateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.store.UpdateSessionDate(r.Context(), id, req.Date); err != nil {
		h.writeFault(w, err)
		return
	}
	h.respondSession(w, r, id)
}

// SetSessionNotes handles PUT /api/sessions/{id}/notes.
func (h *Handlers) SetSessionNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id", "VALIDATION_ERROR")
		return
	}
	var req NotesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.store.UpdateSessionNotes(r.Context(), id, req.Notes); err != nil {
		h.writeFault(w, err)
		return
	}
	h.respondSession(w, r, id)
}

// Reprocess handles POST /api/sessions/{id}/reprocess: it re-runs detection
// inline and returns the replaced track list. Any in-flight job or edit on
// the session makes this a conflict.
func (h *Handlers) Reprocess(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id", "VALIDATION_ERROR")
		return
	}
	var req ReprocessRequest
	if !h.decode(w, r, &req) {
		return
	}

	if active, err := h.jobs.FindActiveBySession(r.Context(), id); err == nil {
		writeError(w, http.StatusConflict,
			"detection job "+active.ID+" already running for this session", "CONFLICT")
		return
	}

	tracks, err := h.takes.Process(r.Context(), id, takes.ProcessOptions{
		ThresholdDB:    req.Threshold,
		MinDurationSec: req.MinDuration,
		SingleTrack:    req.Single,
	})
	if err != nil {
		h.writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackResponses(tracks))
}

func (h *Handlers) respondSession(w http.ResponseWriter, r *http.Request, id int64) {
	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
			return
		}
		h.writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(*session))
}
