package audio

import (
	"os"
	"strings"
	"time"

	"github.com/dhowden/tag"
)

// tagDateKeys are the raw tag fields that can carry a recording date, in
// preference order. Voice memo apps write the MP4 ©day atom; MP3 sources
// use the id3v2 recording-time frame.
var tagDateKeys = []string{"\xa9day", "©day", "date", "TDRC"}

// RecordedDate reads the recording date embedded in the container's
// metadata tags and returns it as YYYY-MM-DD. Returns nil when the file
// has no parseable date tag; callers fall back to filename patterns.
func RecordedDate(path string) *string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil
	}
	return dateFromRawTags(m.Raw())
}

func dateFromRawTags(raw map[string]any) *string {
	for _, key := range tagDateKeys {
		s, ok := raw[key].(string)
		if !ok {
			continue
		}
		if d := parseTagDate(s); d != nil {
			return d
		}
	}
	return nil
}

// parseTagDate accepts the common tag shapes, a bare YYYY-MM-DD or a full
// timestamp such as 2024-01-05T19:30:21Z, ignoring anything past the date.
func parseTagDate(v string) *string {
	v = strings.TrimSpace(v)
	const layout = "2006-01-02"
	if len(v) < len(layout) {
		return nil
	}
	d := v[:len(layout)]
	if _, err := time.Parse(layout, d); err != nil {
		return nil
	}
	return &d
}
