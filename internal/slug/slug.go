// Package slug derives URL-safe routing names from vault paths.
package slug

import (
	"path"
	"strings"

	goslug "github.com/goliatone/go-slug"
)

var segmentReplacer = strings.NewReplacer(
	"&", "-and-",
	"%", "-percent",
	"?", "",
	"#", "",
)

// FromPath turns a note path into a slug: the .md extension is dropped and
// every directory segment is normalised on its own so the hierarchy survives.
func FromPath(p string) string {
	p = strings.Trim(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	p = strings.TrimSuffix(p, path.Ext(p))

	segments := strings.Split(p, "/")
	out := segments[:0]
	for _, seg := range segments {
		if s := Segment(seg); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "/")
}

// Segment normalises a single path segment.
func Segment(seg string) string {
	replaced := segmentReplacer.Replace(strings.Join(strings.Fields(seg), "-"))
	normalized, err := goslug.Normalize(replaced)
	if err != nil || normalized == "" {
		return strings.Trim(replaced, "-")
	}
	return normalized
}
