package media

import (
	"path/filepath"
	"regexp"
	"strings"
)

var scaledPattern = regexp.MustCompile(`^(.+)-scaled(\.[^.]+)$`)

// CanonicalName strips the "-scaled" suffix an automatic downscale inserts
// before the extension. scaled reports whether anything was stripped.
func CanonicalName(stored string) (canonical string, scaled bool) {
	canonical = stored
	for {
		m := scaledPattern.FindStringSubmatch(canonical)
		if m == nil {
			return canonical, canonical != stored
		}
		canonical = m[1] + m[2]
	}
}

// ScaledName returns the name a downscaled copy of canonical is stored under.
func ScaledName(canonical string) string {
	ext := filepath.Ext(canonical)
	return strings.TrimSuffix(canonical, ext) + "-scaled" + ext
}
