package producer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Dir serves reference text from a directory tree mirroring the project,
// e.g. an unpacked baseline or a second checkout.
type Dir struct {
	Root string
}

func (d *Dir) path(key string) string {
	return filepath.Join(d.Root, filepath.FromSlash(key))
}

// FetchReferenceSource reads <Root>/<key>. A missing file has an empty reference.
func (d *Dir) FetchReferenceSource(_ context.Context, key string, _ bool) (string, error) {
	// #nosec G304 - key is a project-relative resource path
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading reference %s: %w", key, err)
	}
	return string(data), nil
}

// LastModified returns the file's modification time.
func (d *Dir) LastModified(_ context.Context, key string) (time.Time, error) {
	info, err := os.Stat(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
