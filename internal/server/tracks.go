package server

import (
	"net/http"
)

// Split handles POST /api/tracks/{id}/split. Returns the whole session's
// tracks, renumbered.
func (h *Handlers) Split(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid track id", "VALIDATION_ERROR")
		return
	}
	var req SplitRequest
	if !h.decode(w, r, &req) {
		return
	}

	tracks, err := h.takes.Split(r.Context(), id, req.SplitAtSec)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackResponses(tracks))
}

// Merge handles POST /api/tracks/{id}/merge. The two tracks must be
// adjacent in the current ordering.
func (h *Handlers) Merge(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid track id", "VALIDATION_ERROR")
		return
	}
	var req MergeRequest
	if !h.decode(w, r, &req) {
		return
	}

	tracks, err := h.takes.Merge(r.Context(), id, req.OtherTrackID)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackResponses(tracks))
}

// TrackAudio handles GET /api/tracks/{id}/audio.
func (h *Handlers) TrackAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid track id", "VALIDATION_ERROR")
		return
	}
	track, err := h.store.GetTrack(r.Context(), id)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	h.serveArtifact(w, r, track.AudioPath)
}

// TagTrack handles POST /api/tracks/{id}/tag, creating the song by name if
// it doesn't exist yet.
func (h *Handlers) TagTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid track id", "VALIDATION_ERROR")
		return
	}
	var req TagRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.store.TagTrack(r.Context(), id, req.SongName); err != nil {
		h.writeFault(w, err)
		return
	}
	h.respondTrack(w, r, id)
}

// UntagTrack handles DELETE /api/tracks/{id}/tag.
func (h *Handlers) UntagTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid track id", "VALIDATION_ERROR")
		return
	}
	if err := h.store.UntagTrack(r.Context(), id); err != nil {
		h.writeFault(w, err)
		return
	}
	h.respondTrack(w, r, id)
}

// SetTrackNotes handles PUT /api/tracks/{id}/notes.
func (h *Handlers) SetTrackNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid track id", "VALIDATION_ERROR")
		return
	}
	var req NotesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.store.UpdateTrackNotes(r.Context(), id, req.Notes); err != nil {
		h.writeFault(w, err)
		return
	}
	h.respondTrack(w, r, id)
}

func (h *Handlers) respondTrack(w http.ResponseWriter, r *http.Request, id int64) {
	track, err := h.store.GetTrack(r.Context(), id)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackResponse(*track))
}
