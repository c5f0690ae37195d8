package domain

import (
	"path"
	"strings"
)

// MatchPath matches a slash-delimited path against a glob pattern. A "*" segment matches
// exactly one segment, "**" matches zero or more segments, and "*" inside a segment
// matches any run of characters within that segment. Matching is case-insensitive.
func MatchPath(pattern, p string) bool {
	return matchSegments(splitPath(pattern), splitPath(p))
}

func splitPath(s string) []string {
	s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		head := pattern[0]
		if head == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if head != "*" {
			ok, err := path.Match(head, segs[0])
			if err != nil || !ok {
				return false
			}
		}
		pattern, segs = pattern[1:], segs[1:]
	}
	return len(segs) == 0
}
