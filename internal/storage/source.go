package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hyperjump/glyphseek/internal/errs"
)

// MaxArtifactBytes bounds how much of an artifact is read into memory.
const MaxArtifactBytes = 256 << 20

// NewArtifactSource returns a FileSource for path, or an HTTPSource when path
// is empty and url is set.
func NewArtifactSource(path, url string) (ArtifactSource, error) {
	switch {
	case path != "":
		return &FileSource{Path: path}, nil
	case url != "":
		return NewHTTPSource(url, nil), nil
	default:
		return nil, errs.Invalid("corpus path or url is required")
	}
}

// FileSource reads the artifact from the local filesystem.
type FileSource struct {
	Path string
}

func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrDataUnavailable, err)
	}
	defer f.Close()
	return readLimited(f)
}

func (s *FileSource) Location() string { return s.Path }

// HTTPSource downloads the artifact with a GET request.
type HTTPSource struct {
	URL    string
	client *http.Client
}

// NewHTTPSource returns a source for url. A nil client uses one with a 30s timeout.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{URL: url, client: client}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrDataUnavailable, err)
	}
	req.Header.Set("Accept", "application/cbor, application/zstd")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrDataUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: %s", errs.ErrDataUnavailable, s.URL, resp.Status)
	}
	return readLimited(resp.Body)
}

func (s *HTTPSource) Location() string { return s.URL }

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrDataUnavailable, err)
	}
	if len(data) > MaxArtifactBytes {
		return nil, fmt.Errorf("%w: artifact exceeds %d bytes", errs.ErrDataUnavailable, MaxArtifactBytes)
	}
	return data, nil
}
