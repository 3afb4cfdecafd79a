// Package audio provides interfaces and implementations for audio analysis
// and segment extraction.
package audio

import "context"

// Analysis parameters for the loudness profile. Decoding at a low sample
// rate keeps multi-hour sources cheap to scan; one profile entry covers one
// second of audio.
const (
	AnalysisSampleRate = 8000
	WindowSec          = 1

	// FloorDB is assigned to all-zero seconds to avoid -Inf values.
	FloorDB = -100.0
)

// Format describes an encoded output artifact.
type Format struct {
	Extension string // ".m4a", ".ogg", ".wav"
	Codec     string // "aac", "libopus", "pcm_s16le"
	Bitrate   string // "192k", empty for WAV
}

var (
	// AAC is the default export format.
	AAC = Format{Extension: ".m4a", Codec: "aac", Bitrate: "192k"}
	// Opus trades compatibility for size.
	Opus = Format{Extension: ".ogg", Codec: "libopus", Bitrate: "192k"}
	// WAV is lossless PCM, mostly useful for debugging boundaries.
	WAV = Format{Extension: ".wav", Codec: "pcm_s16le"}
)

// DefaultFormat is used when the caller does not pick a format.
var DefaultFormat = AAC

// Analyzer computes loudness profiles and durations of source recordings.
type Analyzer interface {
	// Profile decodes the source to low-rate mono and returns one dBFS
	// value per whole second of audio. The source is streamed; it is
	// never held in memory at once. An unreadable source yields a
	// decode-classified error and no partial profile.
	Profile(ctx context.Context, path string) ([]float64, error)

	// Duration returns the total duration of the source in seconds.
	Duration(ctx context.Context, path string) (float64, error)
}

// Slicer extracts one encoded segment from a source recording.
type Slicer interface {
	// Slice seeks to startSec and encodes exactly endSec-startSec seconds
	// of the source into dst. It never decodes the rest of the file.
	Slice(ctx context.Context, src, dst string, startSec, endSec float64, format Format) error
}
