package media

import (
	"fmt"
	"strings"
)

// PathPolicy validates upload and folder destinations against the allowed
// roots and the nesting limit.
type PathPolicy struct {
	roots   map[string]bool
	maxNest int
}

// NewPathPolicy creates a policy for the given root names.
func NewPathPolicy(roots []string, maxNest int) *PathPolicy {
	p := &PathPolicy{roots: make(map[string]bool, len(roots)), maxNest: maxNest}
	for _, r := range roots {
		p.roots[r] = true
	}
	return p
}

// Normalize strips every ".." sequence and surrounding slashes, then checks
// the root and the depth below it. The result is stable under a second call.
func (p *PathPolicy) Normalize(raw string) (string, error) {
	dir := raw
	for strings.Contains(dir, "..") {
		dir = strings.ReplaceAll(dir, "..", "")
	}
	dir = strings.Trim(dir, "/")

	segments := strings.Split(dir, "/")
	if !p.roots[segments[0]] {
		return "", fmt.Errorf("%w: %q", ErrInvalidRootDirectory, segments[0])
	}
	for _, seg := range segments[1:] {
		if seg == "" || seg == "." {
			return "", fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, dir)
		}
	}
	if len(segments)-1 > p.maxNest {
		return "", fmt.Errorf("%w: %d levels below %s, max %d", ErrExceedsMaxNesting, len(segments)-1, segments[0], p.maxNest)
	}
	return dir, nil
}

// RootOf returns the first segment of dir.
func RootOf(dir string) string {
	root, _, _ := strings.Cut(strings.Trim(dir, "/"), "/")
	return root
}
