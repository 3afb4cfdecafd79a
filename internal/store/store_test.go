package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jam.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestSession(t *testing.T, s *Store) int64 {
	t.Helper()
	ctx := context.Background()
	groupID, err := s.CreateGroup(ctx, "The Testers")
	require.NoError(t, err)
	date := "2024-03-15"
	sessionID, err := s.CreateSession(ctx, CreateSessionParams{
		GroupID:     groupID,
		SourceFile:  "recordings/practice 2024-03-15.m4a",
		Date:        &date,
		Fingerprint: "abc123def4567890",
	})
	require.NoError(t, err)
	return sessionID
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jam.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newTestSession(t, s)

	sess, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "practice", sess.Name)
	require.NotNil(t, sess.Date)
	assert.Equal(t, "2024-03-15", *sess.Date)
	assert.Equal(t, 0, sess.TrackCount)

	require.NoError(t, s.UpdateSessionName(ctx, id, "Tuesday rehearsal"))
	require.NoError(t, s.UpdateSessionNotes(ctx, id, "rough night"))
	newDate := "2024-03-16"
	require.NoError(t, s.UpdateSessionDate(ctx, id, &newDate))

	sess, err = s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Tuesday rehearsal", sess.Name)
	assert.Equal(t, "rough night", sess.Notes)
	assert.Equal(t, "2024-03-16", *sess.Date)

	_, err = s.GetSession(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindSessionByFingerprint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newTestSession(t, s)

	sess, err := s.GetSession(ctx, id)
	require.NoError(t, err)

	found, err := s.FindSessionByFingerprint(ctx, sess.GroupID, "abc123def4567890")
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)

	_, err = s.FindSessionByFingerprint(ctx, sess.GroupID, "other")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindSessionByFingerprint(ctx, sess.GroupID, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceTracks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := newTestSession(t, s)

	tracks, err := s.ReplaceTracks(ctx, sessionID, []NewTrack{
		{StartSec: 0, EndSec: 270, AudioPath: "tracks/a/01.m4a"},
		{StartSec: 300, EndSec: 570, AudioPath: "tracks/a/02.m4a"},
	})
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, 1, tracks[0].TrackNumber)
	assert.Equal(t, 2, tracks[1].TrackNumber)
	assert.Equal(t, 270.0, tracks[0].DurationSec)

	// Tag the first track, then replace again: tags never survive a
	// detection run.
	require.NoError(t, s.TagTrack(ctx, tracks[0].ID, "Song X"))

	tracks, err = s.ReplaceTracks(ctx, sessionID, []NewTrack{
		{StartSec: 0, EndSec: 600, AudioPath: "tracks/a/01.m4a"},
	})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Nil(t, tracks[0].SongID)

	sess, err := s.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.TrackCount)
	assert.Equal(t, 0, sess.TaggedCount)
}

func TestApplyEditSplit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := newTestSession(t, s)

	tracks, err := s.ReplaceTracks(ctx, sessionID, []NewTrack{
		{StartSec: 0, EndSec: 270, AudioPath: "t/01.m4a"},
		{StartSec: 300, EndSec: 570, AudioPath: "t/02.m4a"},
	})
	require.NoError(t, err)
	require.NoError(t, s.TagTrack(ctx, tracks[0].ID, "Song X"))
	first, err := s.GetTrack(ctx, tracks[0].ID)
	require.NoError(t, err)

	// Split track 1 at t=120: two inserts replace it, track 2 moves to 3.
	updated, err := s.ApplyEdit(ctx, sessionID,
		[]int64{first.ID},
		[]NewTrack{
			{TrackNumber: 1, StartSec: 0, EndSec: 120, SongID: first.SongID, Notes: first.Notes, AudioPath: "t/01a.m4a"},
			{TrackNumber: 2, StartSec: 120, EndSec: 270, AudioPath: "t/01b.m4a"},
		},
		[]TrackUpdate{{ID: tracks[1].ID, TrackNumber: 3, AudioPath: "t/03.m4a"}},
	)
	require.NoError(t, err)
	require.Len(t, updated, 3)

	for i, track := range updated {
		assert.Equal(t, i+1, track.TrackNumber)
	}
	require.NotNil(t, updated[0].SongName)
	assert.Equal(t, "Song X", *updated[0].SongName)
	assert.Nil(t, updated[1].SongID)
	assert.Equal(t, "t/03.m4a", updated[2].AudioPath)
}

func TestApplyEditRejectsBrokenNumbering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := newTestSession(t, s)

	tracks, err := s.ReplaceTracks(ctx, sessionID, []NewTrack{
		{StartSec: 0, EndSec: 270, AudioPath: "t/01.m4a"},
		{StartSec: 300, EndSec: 570, AudioPath: "t/02.m4a"},
	})
	require.NoError(t, err)

	// A removal with no renumbering of the survivor leaves a gap; the
	// transaction must roll back and the session stays untouched.
	_, err = s.ApplyEdit(ctx, sessionID, []int64{tracks[0].ID}, nil, nil)
	require.Error(t, err)

	after, err := s.TracksForSession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, 1, after[0].TrackNumber)
	assert.Equal(t, 2, after[1].TrackNumber)
}

func TestApplyEditRejectsOverlap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := newTestSession(t, s)

	_, err := s.ReplaceTracks(ctx, sessionID, []NewTrack{
		{StartSec: 0, EndSec: 270, AudioPath: "t/01.m4a"},
	})
	require.NoError(t, err)

	_, err = s.ApplyEdit(ctx, sessionID, nil,
		[]NewTrack{{TrackNumber: 2, StartSec: 200, EndSec: 400, AudioPath: "t/02.m4a"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestDeleteSessionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := newTestSession(t, s)

	tracks, err := s.ReplaceTracks(ctx, sessionID, []NewTrack{
		{StartSec: 0, EndSec: 120, AudioPath: "t/01.m4a"},
		{StartSec: 120, EndSec: 240, AudioPath: "t/02.m4a"},
	})
	require.NoError(t, err)

	paths, err := s.DeleteSession(ctx, sessionID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t/01.m4a", "t/02.m4a"}, paths)

	_, err = s.GetSession(ctx, sessionID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetTrack(ctx, tracks[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTagAndNotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := newTestSession(t, s)

	tracks, err := s.ReplaceTracks(ctx, sessionID, []NewTrack{
		{StartSec: 0, EndSec: 200, AudioPath: "t/01.m4a"},
		{StartSec: 200, EndSec: 400, AudioPath: "t/02.m4a"},
	})
	require.NoError(t, err)

	require.NoError(t, s.TagTrack(ctx, tracks[0].ID, "Song X"))
	require.NoError(t, s.TagTrack(ctx, tracks[1].ID, "Song X"))
	require.NoError(t, s.UpdateTrackNotes(ctx, tracks[0].ID, "great take"))

	songs, err := s.ListSongs(ctx)
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, "Song X", songs[0].Name)
	assert.Equal(t, 2, songs[0].TakeCount)

	takes, err := s.TakesForSong(ctx, songs[0].ID)
	require.NoError(t, err)
	assert.Len(t, takes, 2)

	require.NoError(t, s.UntagTrack(ctx, tracks[1].ID))
	song, err := s.GetSong(ctx, songs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, song.TakeCount)

	track, err := s.GetTrack(ctx, tracks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "great take", track.Notes)

	assert.ErrorIs(t, s.TagTrack(ctx, 9999, "X"), ErrNotFound)
	assert.ErrorIs(t, s.UpdateTrackNotes(ctx, 9999, "x"), ErrNotFound)
}

func TestGroups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateGroup(ctx, "Basement Band")
	require.NoError(t, err)

	g, err := s.GetGroup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Basement Band", g.Name)

	groups, err := s.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	_, err = s.GetGroup(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderingInvariantAfterEdits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := newTestSession(t, s)

	tracks, err := s.ReplaceTracks(ctx, sessionID, []NewTrack{
		{StartSec: 0, EndSec: 100, AudioPath: "t/01.m4a"},
		{StartSec: 100, EndSec: 200, AudioPath: "t/02.m4a"},
		{StartSec: 200, EndSec: 300, AudioPath: "t/03.m4a"},
	})
	require.NoError(t, err)

	// Merge tracks 2+3 into one row.
	merged, err := s.ApplyEdit(ctx, sessionID,
		[]int64{tracks[1].ID, tracks[2].ID},
		[]NewTrack{{TrackNumber: 2, StartSec: 100, EndSec: 300, AudioPath: "t/02m.m4a"}},
		nil,
	)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	// Sorting by track_number equals sorting by start_sec.
	for i := 1; i < len(merged); i++ {
		assert.Greater(t, merged[i].StartSec, merged[i-1].StartSec)
		assert.Equal(t, merged[i-1].TrackNumber+1, merged[i].TrackNumber)
	}
}
