package storage

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	namePrefixRunes = 18
	nameBaseRunes   = 60
)

var (
	unsafeNameRegexp   = regexp.MustCompile(`[<>:"/\\|?*#\x00-\x1f]+`)
	whitespaceRegexp   = regexp.MustCompile(`\s+`)
	trailingDotsRegexp = regexp.MustCompile(`[.\s]+$`)
)

// SanitizeFilename makes s safe as a file name on every desktop platform.
func SanitizeFilename(s string) string {
	s = norm.NFC.String(s)
	s = unsafeNameRegexp.ReplaceAllString(s, "_")
	s = whitespaceRegexp.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return trailingDotsRegexp.ReplaceAllString(s, "")
}

// ArtifactName builds a human browsable file name from the first usable
// source text, a timestamp and ext (with leading dot). Collisions inside a
// directory are resolved when the file is committed.
func ArtifactName(fallback, ext string, at time.Time, sources ...string) string {
	var prefix string
	for _, src := range append(sources, fallback) {
		if p := truncateRunes(SanitizeFilename(src), namePrefixRunes); p != "" {
			prefix = p
			break
		}
	}
	if prefix == "" {
		prefix = "artifact"
	}
	base := truncateRunes(prefix+"_"+at.Format("20060102_150405"), nameBaseRunes)
	return base + ext
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(r[:n]))
}
