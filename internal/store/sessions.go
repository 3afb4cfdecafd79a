package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// sessionSelect is the base query for session reads with derived counts.
const sessionSelect = `
SELECT s.id, s.group_id, s.name, s.date, s.source_file, s.fingerprint, s.notes, s.created_at,
       COUNT(t.id) AS track_count,
       COUNT(t.song_id) AS tagged_count,
       COALESCE((SELECT GROUP_CONCAT(DISTINCT s2.name)
                 FROM tracks t2 JOIN songs s2 ON t2.song_id = s2.id
                 WHERE t2.session_id = s.id), '') AS song_names
FROM sessions s
LEFT JOIN tracks t ON t.session_id = s.id`

// CreateSessionParams describes a session to insert.
type CreateSessionParams struct {
	GroupID     int64
	SourceFile  string
	Date        *string
	Notes       string
	Fingerprint string
}

// CreateSession inserts a session. The display name is derived from the
// source filename.
func (s *Store) CreateSession(ctx context.Context, params CreateSessionParams) (int64, error) {
	name := CleanSessionName(params.SourceFile)
	res, err := s.execWithRetry(ctx,
		"INSERT INTO sessions (group_id, name, source_file, date, fingerprint, notes) VALUES (?, ?, ?, ?, ?, ?)",
		params.GroupID, name, params.SourceFile, params.Date, params.Fingerprint, params.Notes,
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	return id, nil
}

// GetSession fetches one session with derived counts.
func (s *Store) GetSession(ctx context.Context, id int64) (*Session, error) {
	row := s.db.QueryRowContext(ctx, sessionSelect+" WHERE s.id = ? GROUP BY s.id", id)
	return scanSession(row)
}

// ListSessions returns all sessions, newest date first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, sessionSelect+" GROUP BY s.id ORDER BY s.date DESC, s.id DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// FindSessionByFingerprint returns the session within a group whose source
// content matches the fingerprint, or ErrNotFound.
func (s *Store) FindSessionByFingerprint(ctx context.Context, groupID int64, fp string) (*Session, error) {
	if fp == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		sessionSelect+" WHERE s.group_id = ? AND s.fingerprint = ? GROUP BY s.id", groupID, fp)
	return scanSession(row)
}

// UpdateSessionName renames a session.
func (s *Store) UpdateSessionName(ctx context.Context, id int64, name string) error {
	return s.updateSessionColumn(ctx, id, "name", name)
}

// UpdateSessionDate sets or clears the session date.
func (s *Store) UpdateSessionDate(ctx context.Context, id int64, date *string) error {
	return s.updateSessionColumn(ctx, id, "date", date)
}

// UpdateSessionFingerprint records the content fingerprint once known,
// e.g. after a direct-to-storage upload completes.
func (s *Store) UpdateSessionFingerprint(ctx context.Context, id int64, fp string) error {
	return s.updateSessionColumn(ctx, id, "fingerprint", fp)
}

// UpdateSessionNotes replaces the session notes.
func (s *Store) UpdateSessionNotes(ctx context.Context, id int64, notes string) error {
	return s.updateSessionColumn(ctx, id, "notes", notes)
}

func (s *Store) updateSessionColumn(ctx context.Context, id int64, column string, value any) error {
	res, err := s.execWithRetry(ctx, "UPDATE sessions SET "+column+" = ? WHERE id = ?", value, id)
	if err != nil {
		return fmt.Errorf("update session %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session; tracks cascade. Returns the audio paths
// of the deleted tracks so the caller can remove the artifacts.
func (s *Store) DeleteSession(ctx context.Context, id int64) ([]string, error) {
	var paths []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT audio_path FROM tracks WHERE session_id = ?", id)
		if err != nil {
			return fmt.Errorf("collect track paths: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return err
			}
			paths = append(paths, p)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID, &sess.GroupID, &sess.Name, &sess.Date, &sess.SourceFile,
		&sess.Fingerprint, &sess.Notes, &sess.CreatedAt,
		&sess.TrackCount, &sess.TaggedCount, &sess.SongNames,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &sess, nil
}

func collectSessions(rows *sql.Rows) ([]Session, error) {
	var sessions []Session
	for rows.Next() {
		var sess Session
		err := rows.Scan(
			&sess.ID, &sess.GroupID, &sess.Name, &sess.Date, &sess.SourceFile,
			&sess.Fingerprint, &sess.Notes, &sess.CreatedAt,
			&sess.TrackCount, &sess.TaggedCount, &sess.SongNames,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
