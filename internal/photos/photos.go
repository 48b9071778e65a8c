// Package photos is the local file store for find photos. The data layer
// treats a find's photo_uri as an opaque key into this store until sync
// rewrites it to a remote URL.
package photos

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rockhoundapp/rockhound/internal/ids"
)

// imageExts are the extensions List considers image-like.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".heic": true,
}

// Store manages photo files under a single directory.
type Store struct {
	dir string
}

// New creates a photo store rooted at dir, creating it if absent.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photos directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Write stores the bytes under a fresh name with the given extension
// (e.g. ".jpg") and returns the local path.
func (s *Store) Write(data []byte, ext string) (string, error) {
	if ext == "" || !strings.HasPrefix(ext, ".") {
		ext = ".jpg"
	}
	path := filepath.Join(s.dir, ids.New("img")+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	return path, nil
}

// Exists reports whether the file at path is present on disk.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Delete removes the file at path.
func (s *Store) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete photo %s: %w", path, err)
	}
	return nil
}

// List enumerates image files directly under the store directory.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read photos directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !imageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, entry.Name()))
	}
	return paths, nil
}

// IsRemote reports whether the uri already points at a remote URL rather
// than a local file.
func IsRemote(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}
