// Package vocab derives the identity of a vocabulary entry from its content.
package vocab

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/vocabreview/internal/domain"
)

// Normalize joins the entry's fields after trimming, lowercasing and
// normalizing line endings, so cosmetic edits keep the same identity.
func Normalize(e domain.Entry) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		p = strings.Join(strings.Fields(p), " ")
		return p
	}

	// Newline separation keeps "ab"+"c" and "a"+"bc" apart.
	return strings.Join([]string{
		normalizePart(e.Word),
		normalizePart(e.Translation),
		normalizePart(e.Context),
	}, "\n")
}

// Hash returns the hex SHA-256 of the normalized entry.
func Hash(e domain.Entry) string {
	sum := sha256.Sum256([]byte(Normalize(e)))
	return fmt.Sprintf("%x", sum)
}
