package config

import (
	"regexp"
	"strings"
)

var backslashRun = regexp.MustCompile(`\\+`)

// NormalizeFolder canonicalises a user-supplied costume folder: trims
// whitespace, strips leading slashes and backslashes, converts each run of
// backslashes to a single forward slash, and trims trailing slashes. The
// result has no leading or trailing slash.
func NormalizeFolder(raw string) string {
	f := strings.TrimSpace(raw)
	if f == "" {
		return ""
	}
	f = strings.TrimLeft(f, `\`)
	f = strings.TrimLeft(f, "/")
	f = backslashRun.ReplaceAllString(f, "/")
	f = strings.TrimRight(f, "/")
	return f
}

// ComposePath joins a base folder and a variant subfolder, collapsing any
// duplicate slashes. Either side may be empty, in which case the other is
// returned alone.
func ComposePath(base, variant string) string {
	b := NormalizeFolder(base)
	v := NormalizeFolder(variant)
	switch {
	case b == "":
		return v
	case v == "":
		return b
	}
	return collapseSlashes(b + "/" + v)
}

func collapseSlashes(s string) string {
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return s
}
