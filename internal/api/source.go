package api

import (
	"path/filepath"
	"strings"
)

// sourcePolicy decides which server-side paths a client may ask to process:
// the configured source itself, or anything beneath the source root.
type sourcePolicy struct {
	source string
	root   string
}

func newSourcePolicy(source, root string) sourcePolicy {
	return sourcePolicy{source: canonicalPath(source), root: canonicalPath(root)}
}

func (p sourcePolicy) allows(path string) bool {
	if path == "" {
		return false
	}
	target := canonicalPath(path)
	if p.source != "" && target == p.source {
		return true
	}
	if p.root == "" {
		return false
	}
	rel, err := filepath.Rel(p.root, target)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// canonicalPath resolves symlinks where the path exists so a link inside
// the root cannot point outside it.
func canonicalPath(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
