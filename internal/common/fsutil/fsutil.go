package fsutil

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// LocalPath maps a file:// URI or a plain filesystem path to an absolute
// local path. ok is false for any other URI scheme (s3://, http://, ...).
func LocalPath(uri string) (string, bool, error) {
	if uri == "" {
		return "", false, nil
	}
	if strings.HasPrefix(uri, "file:") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", false, fmt.Errorf("parse %q: %w", uri, err)
		}
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		abs, err := filepath.Abs(filepath.FromSlash(p))
		return abs, err == nil, err
	}
	if i := strings.Index(uri, ":"); i > 1 && !strings.ContainsAny(uri[:i], `/\`) {
		// scheme-qualified URI; single-letter prefixes are Windows drives
		return "", false, nil
	}
	p, err := ExpandHome(uri)
	if err != nil {
		return "", false, err
	}
	abs, err := filepath.Abs(p)
	return abs, err == nil, err
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
