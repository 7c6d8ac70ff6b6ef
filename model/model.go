package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// Checksum returns the hex-encoded SHA-256 of the given parts joined with a
// separator. Used for cache keys and artifact integrity checks.
func Checksum(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(hash[:])
}

// LanguageSlug normalizes a language name into a filesystem- and URL-safe
// slug: lowercase, alphanumeric runs joined by single hyphens. "Mandarin
// Chinese" becomes "mandarin-chinese".
func LanguageSlug(language string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(language)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// AudioFileName builds the deterministic per-segment audio file name:
// language slug, lesson id and 1-based segment index.
func AudioFileName(language, lessonID string, index int) string {
	return fmt.Sprintf("%s_%s_%d.mp3", LanguageSlug(language), lessonID, index)
}
