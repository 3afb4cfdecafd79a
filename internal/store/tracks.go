package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const trackSelect = `
SELECT t.id, t.session_id, t.song_id, s.name, t.track_number,
       t.start_sec, t.end_sec, t.duration_sec, t.audio_path, t.notes, t.created_at
FROM tracks t
LEFT JOIN songs s ON t.song_id = s.id`

// GetTrack fetches a single track by ID.
func (s *Store) GetTrack(ctx context.Context, id int64) (*Track, error) {
	row := s.db.QueryRowContext(ctx, trackSelect+" WHERE t.id = ?", id)
	return scanTrack(row)
}

// TracksForSession returns a session's tracks ordered by track number.
func (s *Store) TracksForSession(ctx context.Context, sessionID int64) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx,
		trackSelect+" WHERE t.session_id = ? ORDER BY t.track_number", sessionID)
	if err != nil {
		return nil, fmt.Errorf("tracks for session: %w", err)
	}
	defer rows.Close()
	return collectTracks(rows)
}

// ReplaceTracks atomically discards all tracks of a session and inserts the
// given rows numbered 1..N in slice order. Used by detection runs; tags and
// notes of the prior set are not carried over. Returns the new track list.
func (s *Store) ReplaceTracks(ctx context.Context, sessionID int64, rows []NewTrack) ([]Track, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM tracks WHERE session_id = ?", sessionID); err != nil {
			return fmt.Errorf("clear tracks: %w", err)
		}
		for i, row := range rows {
			if err := insertTrack(ctx, tx, sessionID, i+1, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.TracksForSession(ctx, sessionID)
}

// ApplyEdit performs one structural edit in a single transaction: remove
// the given tracks, insert replacements, and rewrite numbering/paths of
// the survivors. The caller supplies the complete final numbering; this
// method only makes it durable atomically. Returns the full track list.
func (s *Store) ApplyEdit(ctx context.Context, sessionID int64, removeIDs []int64, inserts []NewTrack, updates []TrackUpdate) ([]Track, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range removeIDs {
			res, err := tx.ExecContext(ctx, "DELETE FROM tracks WHERE id = ? AND session_id = ?", id, sessionID)
			if err != nil {
				return fmt.Errorf("delete track %d: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("track %d: %w", id, ErrNotFound)
			}
		}
		for _, row := range inserts {
			if err := insertTrack(ctx, tx, sessionID, row.TrackNumber, row); err != nil {
				return err
			}
		}
		for _, u := range updates {
			res, err := tx.ExecContext(ctx,
				"UPDATE tracks SET track_number = ?, audio_path = ? WHERE id = ? AND session_id = ?",
				u.TrackNumber, u.AudioPath, u.ID, sessionID)
			if err != nil {
				return fmt.Errorf("renumber track %d: %w", u.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("track %d: %w", u.ID, ErrNotFound)
			}
		}
		return verifyNumbering(ctx, tx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return s.TracksForSession(ctx, sessionID)
}

// verifyNumbering asserts the per-session invariants before commit:
// numbers are exactly 1..N and ordering by number matches ordering by
// start time with no overlap between neighbors.
func verifyNumbering(ctx context.Context, tx *sql.Tx, sessionID int64) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT track_number, start_sec, end_sec FROM tracks WHERE session_id = ? ORDER BY start_sec",
		sessionID)
	if err != nil {
		return fmt.Errorf("verify numbering: %w", err)
	}
	defer rows.Close()

	expected := 1
	prevEnd := 0.0
	for rows.Next() {
		var number int
		var start, end float64
		if err := rows.Scan(&number, &start, &end); err != nil {
			return err
		}
		if number != expected {
			return fmt.Errorf("track numbering broken: got %d at position %d", number, expected)
		}
		if start < prevEnd {
			return fmt.Errorf("tracks overlap at %0.2fs", start)
		}
		expected++
		prevEnd = end
	}
	return rows.Err()
}

func insertTrack(ctx context.Context, tx *sql.Tx, sessionID int64, number int, row NewTrack) error {
	if row.EndSec <= row.StartSec {
		return fmt.Errorf("track [%0.2f, %0.2f): end before start", row.StartSec, row.EndSec)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tracks (session_id, song_id, track_number, start_sec, end_sec, duration_sec, audio_path, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, row.SongID, number, row.StartSec, row.EndSec, row.EndSec-row.StartSec, row.AudioPath, row.Notes)
	if err != nil {
		return fmt.Errorf("insert track %d: %w", number, err)
	}
	return nil
}

// TagTrack assigns a song to a track, creating the song by name if needed.
func (s *Store) TagTrack(ctx context.Context, trackID int64, songName string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		songID, err := getOrCreateSong(ctx, tx, songName)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "UPDATE tracks SET song_id = ? WHERE id = ?", songID, trackID)
		if err != nil {
			return fmt.Errorf("tag track: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UntagTrack removes the song tag from a track.
func (s *Store) UntagTrack(ctx context.Context, trackID int64) error {
	res, err := s.execWithRetry(ctx, "UPDATE tracks SET song_id = NULL WHERE id = ?", trackID)
	if err != nil {
		return fmt.Errorf("untag track: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTrackNotes replaces a track's notes.
func (s *Store) UpdateTrackNotes(ctx context.Context, trackID int64, notes string) error {
	res, err := s.execWithRetry(ctx, "UPDATE tracks SET notes = ? WHERE id = ?", notes, trackID)
	if err != nil {
		return fmt.Errorf("update track notes: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTrack(row *sql.Row) (*Track, error) {
	var t Track
	err := row.Scan(
		&t.ID, &t.SessionID, &t.SongID, &t.SongName, &t.TrackNumber,
		&t.StartSec, &t.EndSec, &t.DurationSec, &t.AudioPath, &t.Notes, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan track: %w", err)
	}
	return &t, nil
}

func collectTracks(rows *sql.Rows) ([]Track, error) {
	var tracks []Track
	for rows.Next() {
		var t Track
		err := rows.Scan(
			&t.ID, &t.SessionID, &t.SongID, &t.SongName, &t.TrackNumber,
			&t.StartSec, &t.EndSec, &t.DurationSec, &t.AudioPath, &t.Notes, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}
