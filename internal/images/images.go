// Package images validates uploaded photo attachments.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/webp"
)

// DefaultMaxBytes caps a single attachment when no limit is configured.
const DefaultMaxBytes = 10 << 20

var (
	ErrEmpty    = errors.New("image is empty")
	ErrTooLarge = errors.New("image is too large")
	ErrNotImage = errors.New("file is not a supported image")
)

var allowedMIME = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Info describes a validated image.
type Info struct {
	MIME   string
	Format string
	Width  int
	Height int
}

// Read reads at most maxBytes from r, failing with ErrTooLarge when there
// is more.
func Read(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	raw, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, maxBytes)
	}
	return raw, nil
}

// Validate sniffs and decodes the image header of raw.
func Validate(raw []byte, maxBytes int64) (Info, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(raw) == 0 {
		return Info{}, ErrEmpty
	}
	if int64(len(raw)) > maxBytes {
		return Info{}, fmt.Errorf("%w: over %d bytes", ErrTooLarge, maxBytes)
	}
	mime := http.DetectContentType(raw)
	if !allowedMIME[mime] {
		return Info{}, fmt.Errorf("%w: detected %s", ErrNotImage, mime)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		webpCfg, webpErr := webp.DecodeConfig(bytes.NewReader(raw))
		if webpErr != nil {
			return Info{}, fmt.Errorf("%w: %v", ErrNotImage, err)
		}
		cfg, format = webpCfg, "webp"
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return Info{}, fmt.Errorf("%w: zero dimensions", ErrNotImage)
	}
	return Info{MIME: mime, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
