package server

import (
	"net/http"
)

// ListSongs handles GET /api/songs.
func (h *Handlers) ListSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := h.store.ListSongs(r.Context())
	if err != nil {
		h.writeFault(w, err)
		return
	}
	out := make([]SongResponse, len(songs))
	for i, s := range songs {
		out[i] = SongResponse{
			ID:        s.ID,
			Name:      s.Name,
			Chart:     s.Chart,
			Lyrics:    s.Lyrics,
			Notes:     s.Notes,
			TakeCount: s.TakeCount,
			FirstDate: s.FirstDate,
			LastDate:  s.LastDate,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// SongTracks handles GET /api/songs/{id}/tracks: every take of a song
// across sessions.
func (h *Handlers) SongTracks(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid song id", "VALIDATION_ERROR")
		return
	}
	if _, err := h.store.GetSong(r.Context(), id); err != nil {
		h.writeFault(w, err)
		return
	}
	takes, err := h.store.TakesForSong(r.Context(), id)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	out := make([]SongTakeResponse, len(takes))
	for i, t := range takes {
		out[i] = SongTakeResponse{
			ID:          t.ID,
			SessionID:   t.SessionID,
			SessionName: t.SessionName,
			SessionDate: t.SessionDate,
			TrackNumber: t.TrackNumber,
			StartSec:    t.StartSec,
			EndSec:      t.EndSec,
			DurationSec: t.DurationSec,
			Notes:       t.Notes,
			AudioPath:   t.AudioPath,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ListGroups handles GET /api/groups.
func (h *Handlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListGroups(r.Context())
	if err != nil {
		h.writeFault(w, err)
		return
	}
	out := make([]GroupResponse, len(groups))
	for i, g := range groups {
		out[i] = GroupResponse{ID: g.ID, Name: g.Name}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateGroup handles POST /api/groups.
func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.store.CreateGroup(r.Context(), req.Name)
	if err != nil {
		h.writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, GroupResponse{ID: id, Name: req.Name})
}
