package capture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func TestHTTPSource_Capture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegHeader)
	}))
	defer srv.Close()

	f, err := NewHTTPSource(srv.URL).WithMethod(http.MethodPost).Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jpegHeader, f.Data)
	assert.Equal(t, "image/jpeg", f.ContentType)
	assert.False(t, f.CapturedAt.IsZero())
}

func TestHTTPSource_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL).Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestHTTPSource_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "camera busy", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL).Capture(context.Background())
	assert.ErrorContains(t, err, "status 500")
}

func TestFileSource_Capture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.jpg")
	require.NoError(t, os.WriteFile(path, jpegHeader, 0o644))

	f, err := NewFileSource(path).Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", f.ContentType)
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "none.jpg")).Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestFileSource_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileSource("x").Capture(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
