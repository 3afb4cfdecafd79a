package store

// Group is an owning band or ensemble. Sessions belong to exactly one group.
type Group struct {
	ID        int64
	Name      string
	CreatedAt string
}

// Session is one uploaded source recording and its collection of tracks.
type Session struct {
	ID          int64
	GroupID     int64
	Name        string
	Date        *string // "YYYY-MM-DD", nil when unknown
	SourceFile  string
	Fingerprint string
	Notes       string
	CreatedAt   string

	// Derived on read.
	TrackCount  int
	TaggedCount int
	SongNames   string
}

// Track is one detected or user-edited song segment within a session.
// Track numbers are 1-based and contiguous per session; sorting by
// TrackNumber and by StartSec yields the same order.
type Track struct {
	ID          int64
	SessionID   int64
	SongID      *int64
	SongName    *string
	TrackNumber int
	StartSec    float64
	EndSec      float64
	DurationSec float64
	AudioPath   string
	Notes       string
	CreatedAt   string
}

// Song is a tag target. Tracks reference songs; deleting a song untags its
// tracks.
type Song struct {
	ID        int64
	Name      string
	Chart     string
	Lyrics    string
	Notes     string
	TakeCount int
	FirstDate *string
	LastDate  *string
}

// SongTake is a track joined with its session, as listed under a song.
type SongTake struct {
	ID          int64
	SessionID   int64
	TrackNumber int
	StartSec    float64
	EndSec      float64
	DurationSec float64
	AudioPath   string
	Notes       string
	SessionDate *string
	SessionName string
	SourceFile  string
}

// NewTrack describes a track row to insert. The store derives duration and
// assigns the final number during renumbering.
type NewTrack struct {
	TrackNumber int
	StartSec    float64
	EndSec      float64
	SongID      *int64
	Notes       string
	AudioPath   string
}

// TrackUpdate rewrites the number and artifact path of an existing track
// during renumbering.
type TrackUpdate struct {
	ID          int64
	TrackNumber int
	AudioPath   string
}
