package takes

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jamsplit/jamsplit/internal/audio"
	"github.com/jamsplit/jamsplit/internal/config"
	"github.com/jamsplit/jamsplit/internal/detect"
	"github.com/jamsplit/jamsplit/internal/faults"
	"github.com/jamsplit/jamsplit/internal/storage"
	"github.com/jamsplit/jamsplit/internal/store"
)

const (
	// SplitMarginSec is the minimum distance a split point must keep from
	// both track boundaries so neither half is degenerate.
	SplitMarginSec = 1.0

	// exportConcurrency bounds parallel ffmpeg slice runs during a
	// detection export.
	exportConcurrency = 2
)

// Service is the take engine: detection runs and structural edits, each
// leaving the store and the artifact files consistent with each other.
type Service struct {
	store    *store.Store
	storage  storage.Storage
	analyzer audio.Analyzer
	slicer   audio.Slicer
	cfg      *config.Config
	log      *slog.Logger
	locks    *sessionLocks
}

// NewService wires the take engine.
func NewService(st *store.Store, sto storage.Storage, an audio.Analyzer, sl audio.Slicer, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		store:    st,
		storage:  sto,
		analyzer: an,
		slicer:   sl,
		cfg:      cfg,
		log:      log,
		locks:    newSessionLocks(),
	}
}

// ProcessOptions tunes one detection run. Nil fields fall back to the
// configured defaults.
type ProcessOptions struct {
	ThresholdDB    *float64
	MinDurationSec *int
	SingleTrack    bool
	Format         audio.Format
}

func (o ProcessOptions) format() audio.Format {
	if o.Format.Extension == "" {
		return audio.DefaultFormat
	}
	return o.Format
}

// Process runs detection on a session's source recording and atomically
// replaces its take set. The prior set, tags included, is discarded. On any
// export or store failure the prior set stays untouched.
func (s *Service) Process(ctx context.Context, sessionID int64, opts ProcessOptions) ([]store.Track, error) {
	release, err := s.locks.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	srcPath, err := s.storage.Fetch(ctx, session.SourceFile)
	if err != nil {
		return nil, faults.Wrap(faults.KindStorage, err, "fetch source for session %d", sessionID)
	}

	regions, err := s.detectRegions(ctx, srcPath, opts)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, faults.New(faults.KindValidation,
			"no regions above threshold; adjust threshold_db or use single mode")
	}

	prior, err := s.store.TracksForSession(ctx, sessionID)
	if err != nil {
		return nil, faults.Wrap(faults.KindStorage, err, "load prior tracks")
	}

	format := opts.format()
	stem := sourceStem(session.SourceFile)
	rows := make([]store.NewTrack, len(regions))
	for i, r := range regions {
		name := OutputName(session.Date, i+1, len(regions), r.Start, r.End, "", format.Extension)
		rows[i] = store.NewTrack{
			TrackNumber: i + 1,
			StartSec:    r.Start,
			EndSec:      r.End,
			AudioPath:   s.outKey(stem, name),
		}
	}

	if err := s.exportAll(ctx, srcPath, rows, format); err != nil {
		s.removeArtifacts(ctx, rows)
		return nil, err
	}

	tracks, err := s.store.ReplaceTracks(ctx, sessionID, rows)
	if err != nil {
		s.removeArtifacts(ctx, rows)
		return nil, faults.Wrap(faults.KindStorage, err, "replace tracks for session %d", sessionID)
	}

	s.deleteSuperseded(ctx, prior, rows)

	s.log.Info("detection complete",
		"session_id", sessionID,
		"tracks", len(tracks),
		"single", opts.SingleTrack)
	return tracks, nil
}

// Split replaces one take with two at splitAtSec, an offset from the start
// of the session recording. The first half inherits the tag and notes, the
// second starts clean. Later takes shift up by one.
func (s *Service) Split(ctx context.Context, trackID int64, splitAtSec float64) ([]store.Track, error) {
	target, err := s.getTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(target.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if splitAtSec < target.StartSec+SplitMarginSec || splitAtSec > target.EndSec-SplitMarginSec {
		return nil, faults.New(faults.KindValidation,
			"split point %0.2fs outside [%0.2f, %0.2f] with %0.1fs margin",
			splitAtSec, target.StartSec+SplitMarginSec, target.EndSec-SplitMarginSec, SplitMarginSec)
	}

	session, err := s.getSession(ctx, target.SessionID)
	if err != nil {
		return nil, err
	}
	tracks, err := s.store.TracksForSession(ctx, target.SessionID)
	if err != nil {
		return nil, faults.Wrap(faults.KindStorage, err, "load tracks")
	}

	firstHalf := store.NewTrack{
		StartSec: target.StartSec,
		EndSec:   splitAtSec,
		SongID:   target.SongID,
		Notes:    target.Notes,
	}
	secondHalf := store.NewTrack{
		StartSec: splitAtSec,
		EndSec:   target.EndSec,
	}

	inheritedSong := ""
	if target.SongName != nil {
		inheritedSong = *target.SongName
	}
	plan := s.planEdit(session, tracks, []int64{target.ID},
		[]*store.NewTrack{&firstHalf, &secondHalf}, []string{inheritedSong, ""})

	return s.commitEdit(ctx, session, plan, []store.Track{*target},
		[]store.NewTrack{firstHalf, secondHalf})
}

// Merge collapses two adjacent takes into one spanning their union,
// keeping the earlier take's tag and notes. Later takes shift down by one.
func (s *Service) Merge(ctx context.Context, trackID, otherID int64) ([]store.Track, error) {
	if trackID == otherID {
		return nil, faults.New(faults.KindValidation, "cannot merge a track with itself")
	}

	a, err := s.getTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	b, err := s.getTrack(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if a.SessionID != b.SessionID {
		return nil, faults.New(faults.KindValidation, "tracks belong to different sessions")
	}

	release, err := s.locks.acquire(a.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Normalize so first is the earlier take regardless of argument order.
	first, second := a, b
	if second.TrackNumber < first.TrackNumber {
		first, second = second, first
	}
	if second.TrackNumber != first.TrackNumber+1 {
		return nil, faults.New(faults.KindValidation,
			"tracks %d and %d are not adjacent", first.TrackNumber, second.TrackNumber)
	}

	session, err := s.getSession(ctx, a.SessionID)
	if err != nil {
		return nil, err
	}
	tracks, err := s.store.TracksForSession(ctx, a.SessionID)
	if err != nil {
		return nil, faults.Wrap(faults.KindStorage, err, "load tracks")
	}

	merged := store.NewTrack{
		StartSec: first.StartSec,
		EndSec:   second.EndSec,
		SongID:   first.SongID,
		Notes:    first.Notes,
	}

	inheritedSong := ""
	if first.SongName != nil {
		inheritedSong = *first.SongName
	}
	plan := s.planEdit(session, tracks, []int64{first.ID, second.ID},
		[]*store.NewTrack{&merged}, []string{inheritedSong})

	return s.commitEdit(ctx, session, plan, []store.Track{*first, *second},
		[]store.NewTrack{merged})
}

// plannedTrack is one slot in the final ordering of an edit.
type plannedTrack struct {
	existing *store.Track   // survivor, nil for fresh slices
	insert   *store.NewTrack
	song     string
	start    float64
	end      float64
}

// editPlan is the complete post-edit state: final ordering, the slices to
// produce, and the renames survivors need.
type editPlan struct {
	ordered []plannedTrack
	updates []store.TrackUpdate
}

// planEdit computes the final take list for an edit: removed tracks drop
// out, inserts slot in, everything is ordered by start time and renumbered
// 1..N with artifact names to match. Inserts get their numbers and paths
// written back in place; insertSongs carries the inherited song name per
// insert so the fresh artifacts are named like their tagged survivors.
func (s *Service) planEdit(session *store.Session, tracks []store.Track, removeIDs []int64, inserts []*store.NewTrack, insertSongs []string) *editPlan {
	removed := make(map[int64]struct{}, len(removeIDs))
	for _, id := range removeIDs {
		removed[id] = struct{}{}
	}

	var ordered []plannedTrack
	for i := range tracks {
		t := &tracks[i]
		if _, gone := removed[t.ID]; gone {
			continue
		}
		song := ""
		if t.SongName != nil {
			song = *t.SongName
		}
		ordered = append(ordered, plannedTrack{existing: t, song: song, start: t.StartSec, end: t.EndSec})
	}
	for i, ins := range inserts {
		ordered = append(ordered, plannedTrack{insert: ins, song: insertSongs[i], start: ins.StartSec, end: ins.EndSec})
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].start < ordered[j].start })

	stem := sourceStem(session.SourceFile)
	total := len(ordered)
	plan := &editPlan{ordered: ordered}

	for i := range ordered {
		p := &ordered[i]
		number := i + 1
		if p.insert != nil {
			name := OutputName(session.Date, number, total, p.start, p.end, p.song, audio.DefaultFormat.Extension)
			p.insert.TrackNumber = number
			p.insert.AudioPath = s.outKey(stem, name)
			continue
		}
		ext := filepath.Ext(p.existing.AudioPath)
		name := OutputName(session.Date, number, total, p.start, p.end, p.song, ext)
		newKey := filepath.Join(filepath.Dir(p.existing.AudioPath), name)
		plan.updates = append(plan.updates, store.TrackUpdate{
			ID:          p.existing.ID,
			TrackNumber: number,
			AudioPath:   newKey,
		})
	}
	return plan
}

// commitEdit makes a plan durable: slice the new artifacts, rename the
// survivors, apply the store edit in one transaction, then drop the
// replaced artifacts. A failure before the transaction leaves the prior
// set intact; the transaction itself verifies numbering before commit.
func (s *Service) commitEdit(ctx context.Context, session *store.Session, plan *editPlan, replaced []store.Track, inserts []store.NewTrack) ([]store.Track, error) {
	srcPath, err := s.storage.Fetch(ctx, session.SourceFile)
	if err != nil {
		return nil, faults.Wrap(faults.KindStorage, err, "fetch source for session %d", session.ID)
	}

	for _, ins := range inserts {
		if err := s.exportSlice(ctx, srcPath, ins, audio.DefaultFormat); err != nil {
			s.removeArtifacts(ctx, inserts)
			return nil, err
		}
	}

	var renamed []store.TrackUpdate
	undoRenames := func() {
		for _, u := range renamed {
			if err := s.storage.Rename(ctx, u.AudioPath, s.pathForUpdate(plan, u.ID)); err != nil {
				s.log.Warn("rename rollback failed", "path", u.AudioPath, "error", err)
			}
		}
	}
	for _, u := range plan.updates {
		old := s.pathForUpdate(plan, u.ID)
		if old == "" || old == u.AudioPath {
			continue
		}
		if err := s.storage.Rename(ctx, old, u.AudioPath); err != nil {
			undoRenames()
			s.removeArtifacts(ctx, inserts)
			return nil, faults.Wrap(faults.KindStorage, err, "rename artifact for track %d", u.ID)
		}
		renamed = append(renamed, u)
	}

	removeIDs := make([]int64, len(replaced))
	for i, t := range replaced {
		removeIDs[i] = t.ID
	}

	tracks, err := s.store.ApplyEdit(ctx, session.ID, removeIDs, inserts, plan.updates)
	if err != nil {
		undoRenames()
		s.removeArtifacts(ctx, inserts)
		if errors.Is(err, store.ErrNotFound) {
			return nil, faults.Wrap(faults.KindNotFound, err, "apply edit")
		}
		return nil, faults.Wrap(faults.KindStorage, err, "apply edit for session %d", session.ID)
	}

	for _, t := range replaced {
		if err := s.storage.Delete(ctx, t.AudioPath); err != nil {
			s.log.Warn("stale artifact left behind", "path", t.AudioPath, "error", err)
		}
	}

	s.log.Info("edit applied",
		"session_id", session.ID,
		"removed", len(replaced),
		"inserted", len(inserts),
		"tracks", len(tracks))
	return tracks, nil
}

func (s *Service) pathForUpdate(plan *editPlan, trackID int64) string {
	for _, p := range plan.ordered {
		if p.existing != nil && p.existing.ID == trackID {
			return p.existing.AudioPath
		}
	}
	return ""
}

func (s *Service) detectRegions(ctx context.Context, srcPath string, opts ProcessOptions) ([]detect.Region, error) {
	if opts.SingleTrack {
		dur, err := s.analyzer.Duration(ctx, srcPath)
		if err != nil {
			return nil, faults.Wrap(faults.KindDecode, err, "read duration of %s", filepath.Base(srcPath))
		}
		return detect.SingleRegion(dur), nil
	}

	profile, err := s.analyzer.Profile(ctx, srcPath)
	if err != nil {
		return nil, faults.Wrap(faults.KindDecode, err, "profile %s", filepath.Base(srcPath))
	}

	dopts := detect.DefaultOptions()
	dopts.ThresholdDB = s.cfg.ThresholdDB
	dopts.MinDurationSec = s.cfg.MinDurationSec
	if opts.ThresholdDB != nil {
		dopts.ThresholdDB = *opts.ThresholdDB
	}
	if opts.MinDurationSec != nil {
		dopts.MinDurationSec = *opts.MinDurationSec
	}
	return detect.Detect(profile, dopts), nil
}

// exportAll slices every region concurrently, bounded so a long session
// doesn't fan out one ffmpeg per region.
func (s *Service) exportAll(ctx context.Context, srcPath string, rows []store.NewTrack, format audio.Format) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)

	for _, row := range rows {
		g.Go(func() error {
			return s.exportSlice(gctx, srcPath, row, format)
		})
	}
	return g.Wait()
}

// exportSlice produces one artifact for a planned track and uploads it when
// the backend is remote.
func (s *Service) exportSlice(ctx context.Context, srcPath string, row store.NewTrack, format audio.Format) error {
	dst := s.cfg.ResolvePath(row.AudioPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return faults.Wrap(faults.KindStorage, err, "create output directory")
	}
	if err := s.slicer.Slice(ctx, srcPath, dst, row.StartSec, row.EndSec, format); err != nil {
		return err
	}
	if err := s.storage.Put(ctx, row.AudioPath, dst); err != nil {
		return faults.Wrap(faults.KindStorage, err, "upload %s", row.AudioPath)
	}
	return nil
}

// removeArtifacts best-effort deletes slices produced by a failed edit.
func (s *Service) removeArtifacts(ctx context.Context, rows []store.NewTrack) {
	for _, row := range rows {
		if row.AudioPath == "" {
			continue
		}
		if err := s.storage.Delete(ctx, row.AudioPath); err != nil {
			s.log.Warn("cleanup failed", "path", row.AudioPath, "error", err)
		}
	}
}

// deleteSuperseded removes the prior take set's artifacts after a
// detection run, skipping any path the new set reuses.
func (s *Service) deleteSuperseded(ctx context.Context, prior []store.Track, fresh []store.NewTrack) {
	keep := make(map[string]struct{}, len(fresh))
	for _, row := range fresh {
		keep[row.AudioPath] = struct{}{}
	}
	for _, t := range prior {
		if _, reused := keep[t.AudioPath]; reused {
			continue
		}
		if err := s.storage.Delete(ctx, t.AudioPath); err != nil {
			s.log.Warn("stale artifact left behind", "path", t.AudioPath, "error", err)
		}
	}
}

func (s *Service) outKey(stem, name string) string {
	return s.cfg.MakeRelative(filepath.Join(s.cfg.OutputDirForSource(stem), name))
}

func (s *Service) getSession(ctx context.Context, id int64) (*store.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.New(faults.KindNotFound, "session %d not found", id)
	}
	if err != nil {
		return nil, faults.Wrap(faults.KindStorage, err, "load session %d", id)
	}
	return session, nil
}

func (s *Service) getTrack(ctx context.Context, id int64) (*store.Track, error) {
	track, err := s.store.GetTrack(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, faults.New(faults.KindNotFound, "track %d not found", id)
	}
	if err != nil {
		return nil, faults.Wrap(faults.KindStorage, err, "load track %d", id)
	}
	return track, nil
}
