package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const songSelect = `
SELECT s.id, s.name, s.chart, s.lyrics, s.notes,
       COUNT(t.id) AS take_count,
       MIN(ses.date) AS first_date, MAX(ses.date) AS last_date
FROM songs s
LEFT JOIN tracks t ON t.song_id = s.id
LEFT JOIN sessions ses ON t.session_id = ses.id`

// ListSongs returns all songs with take counts, ordered by name.
func (s *Store) ListSongs(ctx context.Context) ([]Song, error) {
	rows, err := s.db.QueryContext(ctx, songSelect+" GROUP BY s.id ORDER BY s.name")
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		var song Song
		err := rows.Scan(&song.ID, &song.Name, &song.Chart, &song.Lyrics, &song.Notes,
			&song.TakeCount, &song.FirstDate, &song.LastDate)
		if err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// GetSong fetches one song with take counts.
func (s *Store) GetSong(ctx context.Context, id int64) (*Song, error) {
	var song Song
	err := s.db.QueryRowContext(ctx, songSelect+" WHERE s.id = ? GROUP BY s.id", id).Scan(
		&song.ID, &song.Name, &song.Chart, &song.Lyrics, &song.Notes,
		&song.TakeCount, &song.FirstDate, &song.LastDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get song: %w", err)
	}
	return &song, nil
}

// TakesForSong returns every track tagged with a song, newest session first.
func (s *Store) TakesForSong(ctx context.Context, songID int64) ([]SongTake, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.session_id, t.track_number, t.start_sec, t.end_sec, t.duration_sec,
		        t.audio_path, t.notes, ses.date, ses.name, ses.source_file
		 FROM tracks t
		 JOIN sessions ses ON t.session_id = ses.id
		 WHERE t.song_id = ?
		 ORDER BY ses.date DESC, t.track_number`, songID)
	if err != nil {
		return nil, fmt.Errorf("takes for song: %w", err)
	}
	defer rows.Close()

	var takes []SongTake
	for rows.Next() {
		var take SongTake
		err := rows.Scan(&take.ID, &take.SessionID, &take.TrackNumber,
			&take.StartSec, &take.EndSec, &take.DurationSec,
			&take.AudioPath, &take.Notes, &take.SessionDate, &take.SessionName, &take.SourceFile)
		if err != nil {
			return nil, fmt.Errorf("scan song take: %w", err)
		}
		takes = append(takes, take)
	}
	return takes, rows.Err()
}

func getOrCreateSong(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM songs WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup song: %w", err)
	}

	res, err := tx.ExecContext(ctx, "INSERT INTO songs (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("create song: %w", err)
	}
	return res.LastInsertId()
}
