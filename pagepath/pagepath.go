package pagepath

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Normalize strips trailing separators from root. A
// filesystem root ("/") is returned unchanged.
func Normalize(root string) string {
	if root == "" {
		return ""
	}

	trimmed := strings.TrimRight(root, `/\`)
	if trimmed == "" {
		return root[:1]
	}

	// "C:" on its own is a drive-relative path; keep the
	// separator that makes it absolute.
	if filepath.VolumeName(trimmed) == trimmed &&
		len(trimmed) < len(root) {
		return root[:len(trimmed)+1]
	}

	return trimmed
}

// ToRootRelative returns the "/"-prefixed path of file
// relative to root. Query suffixes such as "?raw" are
// dropped first. A file equal to root yields "/". A file
// outside root yields "/" followed by its relative path
// (which then starts with "..").
func ToRootRelative(root string, file string) string {
	if idx := strings.IndexByte(file, '?'); idx >= 0 {
		file = file[:idx]
	}

	root = Normalize(root)
	file = Normalize(file)

	rel, err := filepath.Rel(root, file)
	if err != nil {
		// Rel only fails when one side is absolute and
		// the other is not; fall back to the cleaned file.
		rel = filepath.Clean(file)
	}

	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "." || rel == "" {
		return "/"
	}

	return "/" + rel
}

// FragmentRoot resolves dir against root and returns an
// absolute directory without a trailing separator. An
// absolute dir is cleaned and returned as-is; a relative
// one is joined onto root. An empty dir means "not
// configured": callers must check for it and skip
// discovery, FragmentRoot reports it as an error.
func FragmentRoot(root string, dir string) (string, error) {
	const errCtx = "resolving fragment root"

	if dir == "" {
		return "", fmt.Errorf(
			"%s: directory not configured", errCtx,
		)
	}

	if filepath.IsAbs(dir) {
		return Normalize(filepath.Clean(dir)), nil
	}

	if root == "" || !filepath.IsAbs(root) {
		return "", fmt.Errorf(
			"%s: root %q is not absolute", errCtx, root,
		)
	}

	return Normalize(
		filepath.Join(Normalize(root), dir),
	), nil
}
