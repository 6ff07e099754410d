// Package service holds the layer file store, per-layer style overrides,
// the event bus and the data directory watcher.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/joeblew999/plat-climate/internal/layer"
)

// DefaultLayerGlob selects the files the layer store exposes.
const DefaultLayerGlob = "**/*.{cog,tif,tiff,mbtiles,pmtiles,geojson,json}"

// ErrInvalidPath is returned for names that escape the store root.
var ErrInvalidPath = errors.New("invalid layer path")

// LayerStore is the filesystem-backed object store holding layer files.
// Names are slash-separated and relative to the root.
type LayerStore struct {
	root    string
	pattern string
	fsys    fs.FS
}

// NewLayerStore creates a store over root listing files matching pattern.
func NewLayerStore(root, pattern string) (*LayerStore, error) {
	if pattern == "" {
		pattern = DefaultLayerGlob
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("layer glob %q is not a valid pattern", pattern)
	}
	return &LayerStore{root: root, pattern: pattern, fsys: os.DirFS(root)}, nil
}

// Root returns the store directory.
func (s *LayerStore) Root() string {
	return s.root
}

// Pattern returns the selection glob.
func (s *LayerStore) Pattern() string {
	return s.pattern
}

// Matches reports whether name would be listed.
func (s *LayerStore) Matches(name string) bool {
	if strings.HasSuffix(name, layer.ManifestSuffix) || name == stylesFile {
		return false
	}
	ok, _ := doublestar.Match(s.pattern, name)
	return ok
}

// List returns every matching file, sorted by name. A missing root is an
// empty store.
func (s *LayerStore) List(ctx context.Context) ([]layer.Entry, error) {
	if _, err := os.Stat(s.root); errors.Is(err, fs.ErrNotExist) {
		return []layer.Entry{}, nil
	}
	names, err := doublestar.Glob(s.fsys, s.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob layer store: %w", err)
	}

	entries := make([]layer.Entry, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.Matches(name) {
			continue
		}
		info, err := fs.Stat(s.fsys, name)
		if err != nil {
			continue
		}
		entries = append(entries, layer.Entry{
			Name:      name,
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			UpdatedAt: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// ReadFile returns the contents of name. Missing files wrap fs.ErrNotExist.
func (s *LayerStore) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read layer file %s: %w", name, err)
	}
	return data, nil
}

// Exists reports whether name is a regular file in the store.
func (s *LayerStore) Exists(name string) bool {
	if !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(s.fsys, name)
	return err == nil && info.Mode().IsRegular()
}

// Path returns the absolute filesystem path of name for readers that need a
// real file, such as SQLite.
func (s *LayerStore) Path(name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return filepath.Join(s.root, filepath.FromSlash(name)), nil
}

// ModTime returns the modification time of name.
func (s *LayerStore) ModTime(name string) (time.Time, error) {
	info, err := fs.Stat(s.fsys, name)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// FormatSize returns a human-readable file size.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
