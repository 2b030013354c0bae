// Package fileid derives document IDs for ingested files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxSlug = 48

// DocID returns a stable, readable document ID for a file: a slug of the file
// name followed by a short hash of the cleaned path, e.g.
// "hotel-handbook-2023-1a2b3c4d". Same path always yields the same ID, so
// dropping an updated file at the same path re-ingests the same document.
func DocID(path string) string {
	normalized := filepath.Clean(path)
	hash := sha256.Sum256([]byte(normalized))
	base := filepath.Base(normalized)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return Slug(base) + "-" + hex.EncodeToString(hash[:4])
}

// Generate returns a random document ID for content without a file name.
func Generate() string {
	return "doc-" + uuid.NewString()
}

// Slug lowercases s and replaces every run of non-alphanumeric characters
// with a single "-". The result is capped at 48 runes; empty results become "doc".
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			dash = true
			continue
		}
		if dash && b.Len() > 0 {
			b.WriteByte('-')
		}
		dash = false
		b.WriteRune(r)
	}
	runes := []rune(b.String())
	if len(runes) > maxSlug {
		runes = runes[:maxSlug]
	}
	out := strings.TrimRight(string(runes), "-")
	if out == "" {
		return "doc"
	}
	return out
}
