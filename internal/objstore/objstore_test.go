package objstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutURLDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "http://localhost:8080/files/")
	ctx := context.Background()

	h, err := s.Put(ctx, "issues/loc1/1700000000000-tap.jpg", strings.NewReader("jpegdata"))
	require.NoError(t, err)
	assert.Equal(t, "issues/loc1/1700000000000-tap.jpg", h.Path)
	assert.Equal(t, "http://localhost:8080/files/issues/loc1/1700000000000-tap.jpg", s.URL(h))

	data, err := afero.ReadFile(fs, "/"+h.Path)
	require.NoError(t, err)
	assert.Equal(t, "jpegdata", string(data))

	require.NoError(t, s.Delete(ctx, h.Path))
	exists, err := afero.Exists(fs, "/"+h.Path)
	require.NoError(t, err)
	assert.False(t, exists)

	// deleting again is fine
	assert.NoError(t, s.Delete(ctx, h.Path))
}

func TestPut_CleansTraversal(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/files")
	h, err := s.Put(context.Background(), "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", h.Path)

	_, err = s.Put(context.Background(), "/", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestURL_Escapes(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/files")
	assert.Equal(t, "/files/issues/l/1-my%20photo.png", s.URL(Handle{Path: "issues/l/1-my photo.png"}))
}

func TestPut_CanceledContext(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/files")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Put(ctx, "a/b", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUploadPath(t *testing.T) {
	at := time.UnixMilli(1707900000123)
	tests := []struct {
		name     string
		loc      string
		filename string
		want     string
	}{
		{"plain", "loc1", "tap.jpg", "issues/loc1/1707900000123-tap.jpg"},
		{"strips dirs", "loc1", "C:\\Users\\me\\tap.jpg", "issues/loc1/1707900000123-tap.jpg"},
		{"unix dirs", "loc1", "../../tap.jpg", "issues/loc1/1707900000123-tap.jpg"},
		{"empty name", "loc1", "", "issues/loc1/1707900000123-upload"},
		{"empty location", "", "a.png", "issues/unknown/1707900000123-a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UploadPath(CategoryIssues, tt.loc, at, tt.filename))
		})
	}
}
