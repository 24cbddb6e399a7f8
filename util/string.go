package util

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ASCIIIdent turns a source identifier into a deterministic ASCII identifier.
//
// The name is first NFKC-normalized, as the source language does when it reads
// identifiers, so that two spellings the source treats as one name map to the same result.
// Remaining non-ASCII runes become _uXXXX.
func ASCIIIdent(name string) string {
	normalized := norm.NFKC.String(name)
	sb := &strings.Builder{}
	for i, r := range normalized {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || r == '_'):
			sb.WriteRune(r)
		case r < unicode.MaxASCII && unicode.IsDigit(r):
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r)
		default:
			_, _ = fmt.Fprintf(sb, "_u%04X", r)
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}
