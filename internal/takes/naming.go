// Package takes turns detection results and user edits into durable track
// sets: it slices artifacts, names them, and keeps numbering, ordering, and
// on-disk names consistent through reprocess, split, and merge.
package takes

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// unknownDate stands in for the date segment when a session has none.
const unknownDate = "unknown-date"

var songSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// OutputName builds the artifact file name for one track:
//
//	{date}_{NN}_{MMmSSs-MMmSSs}[_{song}]{ext}
//
// The number is zero-padded to the width of the total track count so the
// names sort in track order.
func OutputName(date *string, number, total int, startSec, endSec float64, song, ext string) string {
	d := unknownDate
	if date != nil && *date != "" {
		d = *date
	}

	width := len(strconv.Itoa(total))
	name := fmt.Sprintf("%s_%0*d_%s-%s", d, width, number, timeTag(startSec), timeTag(endSec))

	if s := sanitizeSong(song); s != "" {
		name += "_" + s
	}
	return name + ext
}

// timeTag renders seconds as MMmSSs, e.g. 272.8 -> "04m32s".
func timeTag(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%02dm%02ds", total/60, total%60)
}

func sanitizeSong(song string) string {
	s := songSanitizer.ReplaceAllString(strings.ToLower(song), "-")
	return strings.Trim(s, "-")
}

// sourceStem returns the per-session output directory name for a source
// file path: the base name without extension.
func sourceStem(sourceFile string) string {
	base := filepath.Base(sourceFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
