package types

import "strings"

// DefaultName is used when a repository name sanitizes to nothing.
const DefaultName = "repository"

// SanitizeName lower-cases name and keeps only ASCII letters, digits and
// underscores. The result is used both as the manifest key and as the
// vector collection name, so two display names that sanitize equally share
// one index.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return DefaultName
	}
	return b.String()
}
