package takes_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamsplit/jamsplit/internal/audio"
	"github.com/jamsplit/jamsplit/internal/config"
	"github.com/jamsplit/jamsplit/internal/faults"
	"github.com/jamsplit/jamsplit/internal/storage"
	"github.com/jamsplit/jamsplit/internal/store"
	"github.com/jamsplit/jamsplit/internal/takes"
)

type fakeAnalyzer struct {
	profile  []float64
	duration float64
	err      error
}

func (f *fakeAnalyzer) Profile(_ context.Context, _ string) ([]float64, error) {
	return f.profile, f.err
}

func (f *fakeAnalyzer) Duration(_ context.Context, _ string) (float64, error) {
	return f.duration, f.err
}

type sliceCall struct {
	start, end float64
	dst        string
}

// fakeSlicer writes a marker file per slice so storage renames and deletes
// operate on real paths. failAt makes the Nth call (0-based) fail.
type fakeSlicer struct {
	mu     sync.Mutex
	calls  []sliceCall
	failAt int
}

func newFakeSlicer() *fakeSlicer { return &fakeSlicer{failAt: -1} }

func (f *fakeSlicer) Slice(_ context.Context, _, dst string, startSec, endSec float64, _ audio.Format) error {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, sliceCall{start: startSec, end: endSec, dst: dst})
	f.mu.Unlock()

	if f.failAt >= 0 && n >= f.failAt {
		return faults.New(faults.KindStorage, "slice failed")
	}
	return os.WriteFile(dst, fmt.Appendf(nil, "%0.2f-%0.2f", startSec, endSec), 0644)
}

type env struct {
	svc      *takes.Service
	st       *store.Store
	cfg      *config.Config
	analyzer *fakeAnalyzer
	slicer   *fakeSlicer
	groupID  int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		DataDir:        dir,
		InputDir:       "recordings",
		OutputDir:      "tracks",
		ThresholdDB:    -30,
		MinDurationSec: 120,
	}
	require.NoError(t, cfg.EnsureDirectories())

	st, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	local, err := storage.NewLocal(dir)
	require.NoError(t, err)

	groupID, err := st.CreateGroup(context.Background(), "Test Band")
	require.NoError(t, err)

	analyzer := &fakeAnalyzer{}
	slicer := newFakeSlicer()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &env{
		svc:      takes.NewService(st, local, analyzer, slicer, cfg, log),
		st:       st,
		cfg:      cfg,
		analyzer: analyzer,
		slicer:   slicer,
		groupID:  groupID,
	}
}

func (e *env) createSession(t *testing.T, date *string) int64 {
	t.Helper()
	src := filepath.Join(e.cfg.DataDir, "recordings", "jam.wav")
	require.NoError(t, os.WriteFile(src, []byte("pcm"), 0644))

	id, err := e.st.CreateSession(context.Background(), store.CreateSessionParams{
		GroupID:     e.groupID,
		SourceFile:  filepath.Join("recordings", "jam.wav"),
		Date:        date,
		Fingerprint: "0123456789abcdef",
	})
	require.NoError(t, err)
	return id
}

// seedTracks installs a track set directly, creating the artifact files the
// edit engine will rename or delete.
func (e *env) seedTracks(t *testing.T, sessionID int64, rows []store.NewTrack) []store.Track {
	t.Helper()
	for _, row := range rows {
		path := e.cfg.ResolvePath(row.AudioPath)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
		require.NoError(t, os.WriteFile(path, []byte("audio"), 0644))
	}
	tracks, err := e.st.ReplaceTracks(context.Background(), sessionID, rows)
	require.NoError(t, err)
	return tracks
}

func (e *env) artifactExists(path string) bool {
	_, err := os.Stat(e.cfg.ResolvePath(path))
	return err == nil
}

func strp(s string) *string { return &s }

// stretch builds sec seconds of a flat dB profile.
func stretch(sec int, db float64) []float64 {
	out := make([]float64, sec)
	for i := range out {
		out[i] = db
	}
	return out
}

func TestProcessSingleTrack(t *testing.T) {
	e := newEnv(t)
	sessionID := e.createSession(t, strp("2024-01-05"))
	e.analyzer.duration = 300

	tracks, err := e.svc.Process(context.Background(), sessionID, takes.ProcessOptions{SingleTrack: true})
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	assert.Equal(t, 1, tracks[0].TrackNumber)
	assert.Equal(t, 0.0, tracks[0].StartSec)
	assert.Equal(t, 300.0, tracks[0].EndSec)
	assert.Equal(t, filepath.Join("tracks", "jam", "2024-01-05_1_00m00s-05m00s.m4a"), tracks[0].AudioPath)
	assert.True(t, e.artifactExists(tracks[0].AudioPath))
}

func TestProcessDetectsTwoSongs(t *testing.T) {
	e := newEnv(t)
	sessionID := e.createSession(t, strp("2024-01-05"))
	e.analyzer.profile = slices.Concat(stretch(270, -10), stretch(30, -60), stretch(270, -10))

	tracks, err := e.svc.Process(context.Background(), sessionID, takes.ProcessOptions{})
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	assert.InDelta(t, 0, tracks[0].StartSec, 1)
	assert.InDelta(t, 270, tracks[0].EndSec, 10)
	assert.InDelta(t, 300, tracks[1].StartSec, 10)
	assert.InDelta(t, 570, tracks[1].EndSec, 1)
	assert.Less(t, tracks[0].EndSec, tracks[1].StartSec+0.001)

	for _, track := range tracks {
		assert.True(t, e.artifactExists(track.AudioPath), track.AudioPath)
	}
}

func TestProcessReplacesPriorSetAndArtifacts(t *testing.T) {
	e := newEnv(t)
	sessionID := e.createSession(t, strp("2024-01-05"))

	prior := e.seedTracks(t, sessionID, []store.NewTrack{
		{StartSec: 0, EndSec: 200, AudioPath: "tracks/jam/old_1.m4a"},
		{StartSec: 210, EndSec: 400, AudioPath: "tracks/jam/old_2.m4a"},
	})
	require.NoError(t, e.st.TagTrack(context.Background(), prior[0].ID, "Blue Bossa"))

	e.analyzer.duration = 500
	tracks, err := e.svc.Process(context.Background(), sessionID, takes.ProcessOptions{SingleTrack: true})
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	// Detection discards the prior set, tags included, and its artifacts.
	assert.Nil(t, tracks[0].SongName)
	assert.False(t, e.artifactExists("tracks/jam/old_1.m4a"))
	assert.False(t, e.artifactExists("tracks/jam/old_2.m4a"))
}

func TestProcessExportFailureKeepsPriorSet(t *testing.T) {
	e := newEnv(t)
	sessionID := e.createSession(t, strp("2024-01-05"))

	e.seedTracks(t, sessionID, []store.NewTrack{
		{StartSec: 0, EndSec: 200, AudioPath: "tracks/jam/old_1.m4a"},
	})

	e.analyzer.duration = 500
	e.slicer.failAt = 0

	_, err := e.svc.Process(context.Background(), sessionID, takes.ProcessOptions{SingleTrack: true})
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindStorage))

	tracks, err := e.st.TracksForSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "tracks/jam/old_1.m4a", tracks[0].AudioPath)
	assert.True(t, e.artifactExists("tracks/jam/old_1.m4a"))
}

func TestProcessNoRegionsRejected(t *testing.T) {
	e := newEnv(t)
	sessionID := e.createSession(t, strp("2024-01-05"))
	e.analyzer.profile = stretch(300, -60)

	_, err := e.svc.Process(context.Background(), sessionID, takes.ProcessOptions{})
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindValidation))
}

func TestProcessUnknownSession(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Process(context.Background(), 999, takes.ProcessOptions{SingleTrack: true})
	assert.True(t, faults.Is(err, faults.KindNotFound))
}

func TestSplitInheritsTagAndRenumbers(t *testing.T) {
	e := newEnv(t)
	sessionID := e.createSession(t, strp("2024-01-05"))

	seeded := e.seedTracks(t, sessionID, []store.NewTrack{
		{StartSec: 0, EndSec: 270, AudioPath: "tracks/jam/2024-01-05_1_00m00s-04m30s.m4a"},
		{StartSec: 300, EndSec: 570, AudioPath: "tracks/jam/2024-01-05_2_05m00s-09m30s.m4a"},
	})
	require.NoError(t, e.st.TagTrack(context.Background(), seeded[0].ID, "Song X"))
	require.NoError(t, e.st.UpdateTrackNotes(context.Background(), seeded[0].ID, "great take"))

	tracks, err := e.svc.Split(context.Background(), seeded[0].ID, 120)
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	first, second, third := tracks[0], tracks[1], tracks[2]

	assert.Equal(t, 1, first.TrackNumber)
	assert.Equal(t, 0.0, first.StartSec)
	assert.Equal(t, 120.0, first.EndSec)
	require.NotNil(t, first.SongName)
	assert.Equal(t, "Song X", *first.SongName)
	assert.Equal(t, "great take", first.Notes)

	assert.Equal(t, 2, second.TrackNumber)
	assert.Equal(t, 120.0, second.StartSec)
	assert.Equal(t, 270.0, second.EndSec)
	assert.Nil(t, second.SongName)
	assert.Empty(t, second.Notes)

	assert.Equal(t, 3, third.TrackNumber)
	assert.Equal(t, 300.0, third.StartSec)

	// Both halves sliced fresh from the source, survivor renamed, the
	// split take's artifact gone.
	assert.True(t, e.artifactExists(first.AudioPath))
	assert.True(t, e.artifactExists(second.AudioPath))
	assert.True(t, e.artifactExists(third.AudioPath))
	assert.False(t, e.artifactExists("tracks/jam/2024-01-05_1_00m00s-04m30s.m4a"))
	assert.Contains(t, third.AudioPath, "_3_")
}

func TestSplitRejectsPointsNearBoundaries(t *testing.T) {
	e := newEnv(t)
	sessionID := e.createSession(t, strp("2024-01-05"))
	seeded := e.seedTracks(t, sessionID, []store.NewTrack{
		{StartSec: 100, EndSec: 200, AudioPath: "tracks/jam/take.m4a"},
	})

	for _, at := range []float64{50, 100, 100.5, 199.5, 200, 300} {
		_, err := e.svc.Split(context.Background(), seeded[0].ID, at)
		require.Error(t, err, "split at %v", at)
		assert.True(t, faults.Is(err, faults.KindValidation), "split at %v", at)
	}

	// No mutation on rejection.
	tracks, err := e.st.TracksForSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "tracks/jam/take.m4a", tracks[0].AudioPath)
	assert.Empty(t, e.slicer.calls)
}

func TestMergeRestoresSplitTake(t *testing.T) {
	e := newEnv(t)
	sessionID := e.createSession(t, strp("2024-01-05"))

	seeded := e.seedTracks(t, sessionID, []store.NewTrack{
		{StartSec: 0, EndSec: 270, AudioPath: "tracks/jam/a.m4a"},
		{StartSec: 300, EndSec: 570, AudioPath: "tracks/jam/b.m4a"},
	})
	require.NoError(t, e.st.TagTrack(context.Background(), seeded[0].ID, "Song X"))
	require.NoError(t, e.st.UpdateTrackNotes(context.Background(), seeded[0].ID, "great take"))

	afterSplit, err := e.svc.Split(context.Background(), seeded[0].ID, 120)
	require.NoError(t, err)
	require.Len(t, afterSplit, 3)

	// Argument order must not matter; adjacency is checked on numbering.
	tracks, err := e.svc.Merge(context.Background(), afterSplit[1].ID, afterSplit[0].ID)
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	merged := tracks[0]
	assert.Equal(t, 1, merged.TrackNumber)
	assert.Equal(t, 0.0, merged.StartSec)
	assert.Equal(t, 270.0, merged.EndSec)
	require.NotNil(t, merged.SongName)
	assert.Equal(t, "Song X", *merged.SongName)
	assert.Equal(t, "great take", merged.Notes)

	assert.Equal(t, 2, tracks[1].TrackNumber)
	assert.True(t, e.artifactExists(merged.AudioPath))
	assert.True(t, e.artifactExists(tracks[1].AudioPath))
}

func TestMergeSecondTakeTagDiscarded(t *testing.T) {
	e := newEnv(t)
	sessionID := e.createSession(t, strp("2024-01-05"))

	seeded := e.seedTracks(t, sessionID, []store.NewTrack{
		{StartSec: 0, EndSec: 120, AudioPath: "tracks/jam/a.m4a"},
		{StartSec: 120, EndSec: 270, AudioPath: "tracks/jam/b.m4a"},
	})
	require.NoError(t, e.st.TagTrack(context.Background(), seeded[1].ID, "Song Y"))

	tracks, err := e.svc.Merge(context.Background(), seeded[0].ID, seeded[1].ID)
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	// First-take-wins: the earlier take was untagged, so the merge is too.
	assert.Nil(t, tracks[0].SongName)
}

func TestMergeRejectsNonAdjacent(t *testing.T) {
	e := newEnv(t)
	sessionID := e.createSession(t, strp("2024-01-05"))

	seeded := e.seedTracks(t, sessionID, []store.NewTrack{
		{StartSec: 0, EndSec: 100, AudioPath: "tracks/jam/a.m4a"},
		{StartSec: 110, EndSec: 200, AudioPath: "tracks/jam/b.m4a"},
		{StartSec: 210, EndSec: 300, AudioPath: "tracks/jam/c.m4a"},
	})

	_, err := e.svc.Merge(context.Background(), seeded[0].ID, seeded[2].ID)
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindValidation))

	_, err = e.svc.Merge(context.Background(), seeded[0].ID, seeded[0].ID)
	assert.True(t, faults.Is(err, faults.KindValidation))

	tracks, err := e.st.TracksForSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, tracks, 3)
}

func TestMergeRejectsAcrossSessions(t *testing.T) {
	e := newEnv(t)
	sessionA := e.createSession(t, strp("2024-01-05"))
	sessionB := e.createSession(t, strp("2024-02-10"))

	a := e.seedTracks(t, sessionA, []store.NewTrack{
		{StartSec: 0, EndSec: 100, AudioPath: "tracks/jam/a.m4a"},
	})
	b := e.seedTracks(t, sessionB, []store.NewTrack{
		{StartSec: 0, EndSec: 100, AudioPath: "tracks/jam2/a.m4a"},
	})

	_, err := e.svc.Merge(context.Background(), a[0].ID, b[0].ID)
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindValidation))
}

func TestOrderingInvariantAfterEditSequence(t *testing.T) {
	e := newEnv(t)
	sessionID := e.createSession(t, strp("2024-01-05"))

	seeded := e.seedTracks(t, sessionID, []store.NewTrack{
		{StartSec: 0, EndSec: 200, AudioPath: "tracks/jam/a.m4a"},
		{StartSec: 210, EndSec: 400, AudioPath: "tracks/jam/b.m4a"},
		{StartSec: 410, EndSec: 600, AudioPath: "tracks/jam/c.m4a"},
	})

	tracks, err := e.svc.Split(context.Background(), seeded[1].ID, 300)
	require.NoError(t, err)
	require.Len(t, tracks, 4)

	tracks, err = e.svc.Merge(context.Background(), tracks[2].ID, tracks[3].ID)
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	// After the sequence: numbers are exactly 1..N and ordering by number
	// matches ordering by start time.
	for i, track := range tracks {
		assert.Equal(t, i+1, track.TrackNumber)
		if i > 0 {
			assert.Greater(t, track.StartSec, tracks[i-1].StartSec)
			assert.GreaterOrEqual(t, track.StartSec, tracks[i-1].EndSec)
		}
	}
}
