package google

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxBaseNameLen = 200

var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// sanitizeFilename produces an ASCII-safe local filename, preserving the
// extension. Tenant uploads regularly carry non-Latin names that trip up
// filesystems and SDKs, so everything outside a conservative character
// set is dropped; a uuid-derived name is used when nothing survives.
func sanitizeFilename(name string) string {
	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		base, ext = name[:i], name[i:]
	}

	folded, _, err := transform.String(asciiFold, base)
	if err != nil {
		folded = base
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range folded {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case unicode.IsSpace(r), r == '/', r == '\\', r == '_':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	cleaned := strings.Trim(b.String(), "_")
	if cleaned == "" {
		cleaned = "file_" + uuid.NewString()
	}
	if len(cleaned) > maxBaseNameLen {
		cleaned = cleaned[:maxBaseNameLen]
	}
	return cleaned + ext
}
