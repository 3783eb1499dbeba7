// Package capture obtains webcam frames for the sampling loop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ErrNoFrame is returned when a source produced no image bytes.
var ErrNoFrame = errors.New("no frame captured")

// maxFrameBytes caps a single frame read.
const maxFrameBytes = 16 << 20

// Frame is one captured image.
type Frame struct {
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}

// Source produces frames on demand.
type Source interface {
	Capture(ctx context.Context) (Frame, error)
}

// #region http

// HTTPSource fetches a JPEG snapshot from a camera endpoint with GET, or
// POST when the endpoint triggers a capture (e.g. a /vision/capture route).
type HTTPSource struct {
	url    string
	method string
	client *http.Client
}

// NewHTTPSource returns a GET source for url.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{url: url, method: http.MethodGet, client: &http.Client{}}
}

// WithMethod sets the HTTP method used for capture.
func (s *HTTPSource) WithMethod(method string) *HTTPSource {
	s.method = method
	return s
}

// Capture fetches one frame.
func (s *HTTPSource) Capture(ctx context.Context) (Frame, error) {
	req, err := http.NewRequestWithContext(ctx, s.method, s.url, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("create capture request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("capture request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Frame{}, fmt.Errorf("capture returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return Frame{}, fmt.Errorf("read frame: %w", err)
	}
	if len(data) == 0 {
		return Frame{}, ErrNoFrame
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return Frame{Data: data, ContentType: ct, CapturedAt: time.Now()}, nil
}

// #endregion http

// #region file

// FileSource re-reads an image file on every capture. Useful when another
// process keeps overwriting the latest webcam still.
type FileSource struct {
	path string
}

// NewFileSource returns a source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Capture reads the file.
func (s *FileSource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Frame{}, fmt.Errorf("%w: %s does not exist", ErrNoFrame, s.path)
		}
		return Frame{}, fmt.Errorf("read frame %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return Frame{}, ErrNoFrame
	}
	return Frame{Data: data, ContentType: http.DetectContentType(data), CapturedAt: time.Now()}, nil
}

// #endregion file
