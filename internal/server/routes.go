package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// APIKey guards every route except /health. Empty disables the check.
	APIKey string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/sessions/upload", h.Upload)
	mux.HandleFunc("POST /api/sessions/upload/init", h.UploadInit)
	mux.HandleFunc("POST /api/sessions/upload/complete", h.UploadComplete)

	mux.HandleFunc("GET /api/sessions", h.ListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.DeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/tracks", h.SessionTracks)
	mux.HandleFunc("GET /api/sessions/{id}/audio", h.SessionAudio)
	mux.HandleFunc("PUT /api/sessions/{id}/name", h.RenameSession)
	mux.HandleFunc("PUT /api/sessions/{id}/date", h.SetSessionDate)
	mux.HandleFunc("PUT /api/sessions/{id}/notes", h.SetSessionNotes)
	mux.HandleFunc("POST /api/sessions/{id}/reprocess", h.Reprocess)

	mux.HandleFunc("POST /api/tracks/{id}/split", h.Split)
	mux.HandleFunc("POST /api/tracks/{id}/merge", h.Merge)
	mux.HandleFunc("GET /api/tracks/{id}/audio", h.TrackAudio)
	mux.HandleFunc("POST /api/tracks/{id}/tag", h.TagTrack)
	mux.HandleFunc("DELETE /api/tracks/{id}/tag", h.UntagTrack)
	mux.HandleFunc("PUT /api/tracks/{id}/notes", h.SetTrackNotes)

	mux.HandleFunc("GET /api/songs", h.ListSongs)
	mux.HandleFunc("GET /api/songs/{id}/tracks", h.SongTracks)

	mux.HandleFunc("GET /api/groups", h.ListGroups)
	mux.HandleFunc("POST /api/groups", h.CreateGroup)

	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
		APIKeyMiddleware(cfg.APIKey),
	)

	return chain(mux)
}
