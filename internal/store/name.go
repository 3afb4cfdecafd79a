package store

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	shortDateRe = regexp.MustCompile(`\b(\d{1,2})-(\d{1,2})-(\d{2,4})\b`)

	trailingDashRe = regexp.MustCompile(`\s*-\s*$`)
	leadingDashRe  = regexp.MustCompile(`^\s*-\s*`)
	multiSpaceRe   = regexp.MustCompile(`\s{2,}`)
)

// CleanSessionName generates a display name from a source filename by
// stripping the extension and any embedded date pattern.
func CleanSessionName(sourceFile string) string {
	name := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))
	name = isoDateRe.ReplaceAllString(name, "")
	name = shortDateRe.ReplaceAllString(name, "")
	name = trailingDashRe.ReplaceAllString(name, "")
	name = leadingDashRe.ReplaceAllString(name, "")
	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// DateFromFilename extracts a session date from filename patterns
// (YYYY-MM-DD, M-D-YY, M-D-YYYY). Returns nil when no valid date is found.
func DateFromFilename(sourceFile string) *string {
	stem := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))

	if m := isoDateRe.FindStringSubmatch(stem); m != nil {
		if d := normalizeDate(m[1], m[2], m[3]); d != nil {
			return d
		}
	}
	if m := shortDateRe.FindStringSubmatch(stem); m != nil {
		year := m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		if d := normalizeDate(year, m[1], m[2]); d != nil {
			return d
		}
	}
	return nil
}

func normalizeDate(year, month, day string) *string {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)

	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range components; reject those.
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return nil
	}
	s := fmt.Sprintf("%04d-%02d-%02d", y, m, d)
	return &s
}
