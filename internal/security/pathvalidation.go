// Package security holds path checks for files the tool writes on the
// operator's behalf (audit frames, reports).
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// JoinWithin joins name onto dir and rejects results that escape dir.
// The check is lexical so it works for in-memory filesystems too; name may
// not be absolute.
func JoinWithin(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("path traversal detected: %s is absolute", name)
	}
	cleanDir := filepath.Clean(dir)
	joined := filepath.Join(cleanDir, name)

	rel, err := filepath.Rel(cleanDir, joined)
	if err != nil {
		return "", fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %s attempts to escape %s", name, dir)
	}
	return joined, nil
}

// SanitizeFilename replaces anything other than ASCII letters, digits, dot,
// underscore or dash with a single underscore and caps the length.
func SanitizeFilename(s string) string {
	const maxLen = 128

	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
