package title

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	// Fallback is used when a title normalizes to nothing.
	Fallback = "youtube_video"

	maxRunes = 120
)

var (
	reHostile = regexp.MustCompile(`[\\/:*?"<>|]+`)
	reSpace   = regexp.MustCompile(`\s+`)
)

// Normalize turns a free-text video title into a base file name: runs of
// path-hostile characters become "_", whitespace runs collapse to one space,
// the result is trimmed and capped at 120 runes.
func Normalize(s string) string {
	s = reHostile.ReplaceAllString(s, "_")
	s = reSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return Fallback
	}
	if r := []rune(s); len(r) > maxRunes {
		// The cut can land right after a space.
		s = strings.TrimRight(string(r[:maxRunes]), " ")
	}
	return s
}

// Disambiguate suffixes name with a short hash of reference so two references
// sharing a title do not overwrite each other's files.
func Disambiguate(name, reference string) string {
	return name + "-" + hash(reference)[:6]
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
