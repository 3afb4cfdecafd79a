// Package detect implements song-boundary detection over a per-second
// loudness profile. It is pure: no file or database I/O, so the algorithm
// can be exercised with synthetic profiles.
package detect

// Default detection parameters. Threshold is in dBFS; higher is more
// selective and yields fewer, shorter regions.
const (
	DefaultThresholdDB    = -30.0
	DefaultMinDurationSec = 120
	SmoothingWindowSec    = 15
	EdgePaddingSec        = 2.0
)

// Region is a candidate song segment [Start, End) in seconds from the
// beginning of the recording.
type Region struct {
	Start float64
	End   float64
}

// Duration returns the region length in seconds.
func (r Region) Duration() float64 { return r.End - r.Start }

// Options configures a detection run.
type Options struct {
	// ThresholdDB is the smoothed loudness at or above which a second
	// counts as part of a song.
	ThresholdDB float64
	// MinDurationSec drops candidate regions shorter than this.
	MinDurationSec int
	// SmoothingWindowSec is the rolling-average window width in seconds.
	SmoothingWindowSec int
}

// DefaultOptions returns the detection defaults.
func DefaultOptions() Options {
	return Options{
		ThresholdDB:        DefaultThresholdDB,
		MinDurationSec:     DefaultMinDurationSec,
		SmoothingWindowSec: SmoothingWindowSec,
	}
}

func (o Options) withDefaults() Options {
	if o.MinDurationSec <= 0 {
		o.MinDurationSec = DefaultMinDurationSec
	}
	if o.SmoothingWindowSec <= 0 {
		o.SmoothingWindowSec = SmoothingWindowSec
	}
	return o
}

// SingleRegion returns the one region covering the whole recording. Used
// when the caller asserts the source is a single continuous song.
func SingleRegion(durationSec float64) []Region {
	if durationSec <= 0 {
		return nil
	}
	return []Region{{Start: 0, End: durationSec}}
}

// Detect extracts song regions from a per-second dBFS profile. The profile
// is smoothed with a centered rolling average, seconds at or above the
// threshold are collapsed into candidate regions, regions shorter than the
// minimum duration are dropped, and survivors are padded by a couple of
// seconds on each side. Padding is clamped to the midpoint of the gap
// between neighbors so emitted regions never overlap. Regions are returned
// in ascending start order.
func Detect(profile []float64, opts Options) []Region {
	if len(profile) == 0 {
		return nil
	}
	opts = opts.withDefaults()

	total := float64(len(profile))
	smoothed := Smooth(profile, opts.SmoothingWindowSec)

	raw := collapse(smoothed, opts.ThresholdDB)

	var kept []Region
	for _, r := range raw {
		if r.Duration() >= float64(opts.MinDurationSec) {
			kept = append(kept, r)
		}
	}

	return pad(kept, total)
}

// Smooth applies a centered rolling average of the given window width.
// Profiles no longer than the window are returned unchanged.
func Smooth(values []float64, window int) []float64 {
	if len(values) <= window {
		return values
	}
	half := window / 2
	smoothed := make([]float64, len(values))
	for i := range values {
		start := max(0, i-half)
		end := min(len(values), i+half+1)
		var sum float64
		for _, v := range values[start:end] {
			sum += v
		}
		smoothed[i] = sum / float64(end-start)
	}
	return smoothed
}

// collapse turns consecutive at-or-above-threshold seconds into regions.
func collapse(smoothed []float64, thresholdDB float64) []Region {
	var regions []Region
	inSong := false
	var songStart int

	for i, db := range smoothed {
		if db >= thresholdDB {
			if !inSong {
				songStart = i
				inSong = true
			}
		} else if inSong {
			regions = append(regions, Region{Start: float64(songStart), End: float64(i)})
			inSong = false
		}
	}
	if inSong {
		regions = append(regions, Region{Start: float64(songStart), End: float64(len(smoothed))})
	}
	return regions
}

// pad widens each region by EdgePaddingSec per side, clamped to the file
// bounds and to the midpoint of the gap to each neighbor. A region abutting
// the start or end of the file simply keeps that boundary.
func pad(regions []Region, total float64) []Region {
	padded := make([]Region, len(regions))
	for i, r := range regions {
		start := r.Start - EdgePaddingSec
		end := r.End + EdgePaddingSec

		if i > 0 {
			if mid := (regions[i-1].End + r.Start) / 2; start < mid {
				start = mid
			}
		}
		if i < len(regions)-1 {
			if mid := (r.End + regions[i+1].Start) / 2; end > mid {
				end = mid
			}
		}

		padded[i] = Region{Start: max(start, 0), End: min(end, total)}
	}
	return padded
}
