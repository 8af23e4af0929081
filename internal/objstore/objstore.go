// Package objstore stores uploaded blobs under slash-separated paths and
// exposes them by URL.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Category names used in upload paths.
const (
	CategoryIssues = "issues"
)

// Handle identifies a stored object.
type Handle struct {
	Path string `json:"path"`
}

// Storage is the object storage contract used by the tracker.
type Storage interface {
	Put(ctx context.Context, p string, r io.Reader) (Handle, error)
	URL(h Handle) string
	Delete(ctx context.Context, p string) error
}

// FSStorage implements Storage on an afero filesystem.
type FSStorage struct {
	fs      afero.Fs
	baseURL string
}

// New returns storage backed by fs. URLs are baseURL joined with the path.
func New(fs afero.Fs, baseURL string) *FSStorage {
	return &FSStorage{fs: fs, baseURL: strings.TrimRight(baseURL, "/")}
}

// NewDir returns storage rooted at dir on the local disk.
func NewDir(dir, baseURL string) (*FSStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir), baseURL), nil
}

// Fs exposes the underlying filesystem, e.g. for serving files read-only.
// Objects live at "/" + Handle.Path.
func (s *FSStorage) Fs() afero.Fs { return s.fs }

func (s *FSStorage) Put(ctx context.Context, p string, r io.Reader) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	clean, err := cleanPath(p)
	if err != nil {
		return Handle{}, err
	}
	name := "/" + clean
	if err := s.fs.MkdirAll(path.Dir(name), 0755); err != nil {
		return Handle{}, fmt.Errorf("put %s: %w", clean, err)
	}
	f, err := s.fs.Create(name)
	if err != nil {
		return Handle{}, fmt.Errorf("put %s: %w", clean, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(name)
		return Handle{}, fmt.Errorf("put %s: %w", clean, err)
	}
	if err := f.Close(); err != nil {
		return Handle{}, fmt.Errorf("put %s: %w", clean, err)
	}
	return Handle{Path: clean}, nil
}

func (s *FSStorage) URL(h Handle) string {
	escaped := (&url.URL{Path: h.Path}).EscapedPath()
	return s.baseURL + "/" + strings.TrimLeft(escaped, "/")
}

// Delete removes the object at p. A missing object is not an error.
func (s *FSStorage) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}
	if err := s.fs.Remove("/" + clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", clean, err)
	}
	return nil
}

func cleanPath(p string) (string, error) {
	clean := strings.TrimPrefix(path.Clean("/"+p), "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	return clean, nil
}

// UploadPath builds {category}/{locationID}/{epochMillis}-{filename}.
func UploadPath(category, locationID string, at time.Time, filename string) string {
	return fmt.Sprintf("%s/%s/%d-%s", category, safeSegment(locationID, "unknown"), at.UnixMilli(), SanitizeFilename(filename))
}

// SanitizeFilename reduces a client-supplied name to a single safe segment.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return safeSegment(path.Base(name), "upload")
}

func safeSegment(s, fallback string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "/", "_"))
	if s == "" || s == "." || s == ".." {
		return fallback
	}
	return s
}
