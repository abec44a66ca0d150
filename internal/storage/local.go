// Package storage resolves stored file paths under a root directory.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// Local reads uploaded files from a directory tree.
type Local struct {
	root string
}

// NewLocal returns a Local rooted at root, which is made absolute.
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, kberrors.ConfigError("storage root is empty", nil)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, kberrors.ConfigError("invalid storage root", err)
	}
	return &Local{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute storage root.
func (l *Local) Root() string {
	return l.root
}

// Resolve maps a stored relative path to an absolute path under the root.
// Backslashes are treated as separators and leading slashes are dropped;
// a path that escapes the root after cleaning is rejected.
func (l *Local) Resolve(rel string) (string, error) {
	p := strings.TrimSpace(strings.ReplaceAll(rel, `\`, "/"))
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", kberrors.Validation("storage path is empty")
	}

	abs := filepath.Join(l.root, filepath.FromSlash(p))
	if abs != l.root && !strings.HasPrefix(abs, l.root+string(filepath.Separator)) {
		return "", kberrors.New(kberrors.ErrCodePathTraversal,
			fmt.Sprintf("illegal storage path (path traversal): %s", rel), nil)
	}
	return abs, nil
}

// Exists reports whether rel resolves to an existing regular file.
func (l *Local) Exists(rel string) (bool, error) {
	abs, err := l.Resolve(rel)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, kberrors.New(kberrors.ErrCodeFileRead, "stat "+rel, err)
	}
	return info.Mode().IsRegular(), nil
}

// Read returns the bytes stored at rel.
func (l *Local) Read(rel string) ([]byte, error) {
	abs, err := l.Resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return nil, kberrors.New(kberrors.ErrCodeFileNotFound, "file not found on disk: "+rel, err)
	}
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeFileRead, "read "+rel, err)
	}
	return data, nil
}
