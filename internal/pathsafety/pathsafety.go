// Package pathsafety canonicalizes a client-requested filename against a
// configured root directory and rejects anything that would escape it.
// Steps 1-4 are cheap lexical pre-filters; the final canonicalization and
// containment check is the definitive guard that catches anything
// symlinks or encoding tricks might smuggle past the lexical pass.
package pathsafety

import (
	"os"
	"path/filepath"
	"strings"
)

const maxRequestedLen = 255

var forbiddenSubstrings = []string{"..", "./", ".\\", "/.", "\\."}

var forbiddenChars = map[byte]bool{
	'<': true, '>': true, '|': true, '?': true, '*': true, '~': true, '$': true, '%': true,
}

// IsSecure reports whether requested may be safely joined onto root. It
// fails closed: any ambiguity, any canonicalization error, or any
// out-of-bounds substring returns false.
func IsSecure(requested, root string) bool {
	if !PassesLexicalChecks(requested) {
		return false
	}

	canonicalRoot, err := weaklyCanonical(root)
	if err != nil {
		return false
	}
	canonicalRoot = strings.TrimRight(canonicalRoot, string(filepath.Separator)) + string(filepath.Separator)

	target := filepath.Join(canonicalRoot, requested)

	canonicalTarget, err := weaklyCanonical(target)
	if err != nil {
		return false
	}

	if !strings.HasPrefix(canonicalTarget, canonicalRoot) {
		// An exact match on the root itself (canonicalTarget == root with
		// the separator trimmed) is not a valid target: a request must
		// resolve to something under the root, not the root itself.
		return false
	}

	rel := strings.TrimPrefix(canonicalTarget, canonicalRoot)
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == ".." {
			return false
		}
	}

	return true
}

// Canonicalize returns the canonical path of requested under root. Callers
// must have already confirmed IsSecure(requested, root).
func Canonicalize(requested, root string) (string, error) {
	canonicalRoot, err := weaklyCanonical(root)
	if err != nil {
		return "", err
	}

	return weaklyCanonical(filepath.Join(canonicalRoot, requested))
}

// PassesLexicalChecks runs the cheap lexical pre-filters without touching
// the filesystem: non-empty and within length limits, free of
// control/null bytes and forbidden characters or substrings, and not an
// absolute path. It is exported so internal/validation can apply the
// identical rules to client-facing
// filenames without requiring a root directory to check containment
// against.
func PassesLexicalChecks(requested string) bool {
	if requested == "" || len(requested) > maxRequestedLen {
		return false
	}

	for i := 0; i < len(requested); i++ {
		c := requested[i]
		if c == 0x00 || (c >= 0x01 && c <= 0x1F) || c == 0x7F {
			return false
		}

		if forbiddenChars[c] {
			return false
		}
	}

	for _, sub := range forbiddenSubstrings {
		if strings.Contains(requested, sub) {
			return false
		}
	}

	if isAbsolute(requested) {
		return false
	}

	return true
}

func isAbsolute(p string) bool {
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return true
	}

	if strings.HasPrefix(p, "//") {
		return true
	}

	// drive-letter absolute paths, e.g. "C:\..." or "C:/..."
	if len(p) >= 2 && p[1] == ':' {
		c := p[0]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			return true
		}
	}

	return false
}

// weaklyCanonical resolves as much of path as exists on disk (following
// symlinks) and appends any non-existent suffix literally, mirroring
// std::filesystem::weakly_canonical semantics. Any filesystem error other
// than "does not exist" is propagated (fail-closed).
func weaklyCanonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	clean := filepath.Clean(abs)

	existing := clean
	var suffix []string

	for {
		_, err := os.Lstat(existing)
		if err == nil {
			break
		}

		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(existing)
		if parent == existing {
			// reached filesystem root without finding an existing
			// ancestor; nothing left to resolve via symlinks.
			break
		}

		suffix = append([]string{filepath.Base(existing)}, suffix...)
		existing = parent
	}

	resolved := existing
	if _, err := os.Lstat(existing); err == nil {
		resolved, err = filepath.EvalSymlinks(existing)
		if err != nil {
			return "", err
		}
	}

	full := resolved
	for _, s := range suffix {
		full = filepath.Join(full, s)
	}

	return filepath.Clean(full), nil
}
