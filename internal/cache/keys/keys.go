// Package keys builds result cache keys.
package keys

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "tilestats:result"

// ResultKey identifies a call result: dataset, its registry version, the
// method and a hash of the compacted params.
func ResultKey(dataset string, version uint64, method string, params []byte) string {
	return fmt.Sprintf("%s%d:%s:p=%016x", DatasetPrefix(dataset), version, sanitizeSegment(method), xxhash.Sum64(normalizeParams(params)))
}

// DatasetPrefix is shared by every key of dataset.
func DatasetPrefix(dataset string) string {
	d := sanitizeSegment(strings.TrimSpace(dataset))
	// the hash keeps datasets distinct after sanitizing
	return fmt.Sprintf("%s:%s:%08x:", prefix, d, uint32(xxhash.Sum64String(dataset)))
}

func normalizeParams(p []byte) []byte {
	p = bytes.TrimSpace(p)
	if len(p) == 0 {
		return nil
	}
	var b bytes.Buffer
	if err := json.Compact(&b, p); err != nil {
		return p
	}
	return b.Bytes()
}

func sanitizeSegment(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// Any other rune (including ':' and non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
