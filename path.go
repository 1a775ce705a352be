package epubreader

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolvePath resolves ref against the directory of basePath inside the
// archive namespace. A ref starting with "/" is already rooted: the marker
// is dropped and the rest returned as-is. Otherwise ref is percent-decoded
// and its segments applied to the base directory; ".." climbing above the
// archive root yields ErrPathEscapesRoot.
func ResolvePath(basePath, ref string) (string, error) {
	if rooted, ok := strings.CutPrefix(ref, "/"); ok {
		return rooted, nil
	}
	if decoded, err := url.PathUnescape(ref); err == nil {
		ref = decoded
	}

	segs := strings.Split(basePath, "/")
	segs = segs[:len(segs)-1]
	out := make([]string, 0, len(segs)+4)
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}

	for _, s := range strings.Split(ref, "/") {
		switch s {
		case "", ".":
		case "..":
			if len(out) == 0 {
				return "", fmt.Errorf("%s relative to %s: %w", ref, basePath, ErrPathEscapesRoot)
			}
			out = out[:len(out)-1]
		default:
			out = append(out, s)
		}
	}
	return strings.Join(out, "/"), nil
}

// StripFragment returns href with any "#fragment" suffix removed.
func StripFragment(href string) string {
	if idx := strings.IndexByte(href, '#'); idx >= 0 {
		return href[:idx]
	}
	return href
}
