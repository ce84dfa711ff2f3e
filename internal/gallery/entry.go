// Package gallery keeps the local reference gallery in step with the remote object store
// that acts as its source of truth.
package gallery

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Entry is one reference identity image. Entries are immutable: replacing the
// content of a key is a delete followed by a create.
type Entry struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	LocalPath   string `json:"-"`
}

// Marker suffixes used by enrolment tooling before the display-name separator.
var markerSuffixes = []string{"_db_image", "_db"}

// removeDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// SanitizeName reduces a display name to letters, digits and single spaces.
// Underscores and dashes become spaces so word boundaries survive.
func SanitizeName(name string) string {
	name = removeDiacritics(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '_', r == '-':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// SanitizeFilename keeps the basename of an uploaded file with a conservative
// character set. Underscores are mapped to dashes so the last underscore of a key
// always separates the display name from the filename.
func SanitizeFilename(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	base = removeDiacritics(base)

	var b strings.Builder
	for _, r := range base {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-':
			b.WriteRune(r)
		case r == '_', unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}

	clean := strings.TrimLeft(b.String(), ".-")
	if clean == "" {
		return "image.jpg"
	}
	return clean
}

// NewKey derives the gallery key for an upload from the person's name and the
// original filename.
func NewKey(name, filename string) (string, error) {
	safeName := SanitizeName(name)
	if safeName == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return safeName + "_" + SanitizeFilename(filename), nil
}

// ValidateKey rejects keys that cannot be stored as a plain file in the gallery directory.
func ValidateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsAny(key, `/\`), strings.ContainsRune(key, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, key)
	case strings.HasPrefix(key, "."):
		return fmt.Errorf("%w: %q is a hidden name", ErrInvalidKey, key)
	}
	return nil
}

// DisplayName derives the human-readable identity from a key.
// "Vladimir_Putin_db_image.jpg" -> "Vladimir Putin", "John_Doe_2.jpg" -> "John Doe".
func DisplayName(key string) string {
	base := strings.TrimSuffix(key, filepath.Ext(key))

	stripped := false
	for _, suffix := range markerSuffixes {
		if strings.HasSuffix(base, suffix) {
			base = strings.TrimSuffix(base, suffix)
			stripped = true
			break
		}
	}
	if !stripped {
		if i := strings.LastIndex(base, "_"); i > 0 {
			base = base[:i]
		}
	}

	name := strings.Join(strings.Fields(strings.ReplaceAll(base, "_", " ")), " ")
	if name == "" {
		return key
	}
	return name
}

// NewEntry builds an entry for a key stored at localPath.
func NewEntry(key, localPath string) Entry {
	return Entry{
		Key:         key,
		DisplayName: DisplayName(key),
		LocalPath:   localPath,
	}
}

// Fingerprint identifies a set of gallery keys. It changes if and only if the set changes.
func Fingerprint(keys []string) string {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	h := sha256.New()
	for _, k := range sorted {
		fmt.Fprintf(h, "%d:%s\n", len(k), k)
	}
	return hex.EncodeToString(h.Sum(nil))
}
