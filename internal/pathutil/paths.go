// Package pathutil provides remote-path normalization and filename
// sanitization. Remote paths always use forward slashes regardless of the
// host platform.
package pathutil

import (
	"fmt"
	"path"
	"strings"
)

// Normalize cleans a remote path into canonical form: absolute, forward
// slashes, no trailing slash except for the root itself.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = path.Clean(p)
	if p == "." {
		return "/"
	}
	return p
}

// Join joins a directory path and a child name into a normalized remote path.
func Join(dir, name string) string {
	return Normalize(strings.TrimSuffix(dir, "/") + "/" + name)
}

// Parent returns the parent directory of a normalized remote path.
// The parent of "/" is "/".
func Parent(p string) string {
	p = Normalize(p)
	if p == "/" {
		return "/"
	}
	return path.Dir(p)
}

// IsDescendant reports whether child is strictly below ancestor.
func IsDescendant(ancestor, child string) bool {
	ancestor = Normalize(ancestor)
	child = Normalize(child)
	if ancestor == "/" {
		return child != "/"
	}
	return strings.HasPrefix(child, ancestor+"/")
}

// ValidateFilename validates a bare filename received from an external
// source before it is used in a filesystem join. Rejects empty names, path
// separators, null bytes, and the ".." component. Names like "a..b.txt"
// remain valid.
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("filename contains null byte: %s", name)
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, '\\') {
		return fmt.Errorf("filename cannot contain path separators: %s", name)
	}
	if name == ".." {
		return fmt.Errorf("filename cannot be '..'")
	}
	return nil
}

// SanitizeFilename reduces a remote filename to characters safe for a local
// scratch file and caps its length. Used when naming transient download
// files; the original name travels separately.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-', r == ' ':
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	if s == "" {
		s = "file"
	}
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// ScratchName builds a collision-free transient filename for an in-flight
// transfer: identity, timestamp, and the sanitized original name.
func ScratchName(identity string, unixTime int64, original string) string {
	return fmt.Sprintf("%s_%d_%s", SanitizeFilename(identity), unixTime, SanitizeFilename(original))
}
