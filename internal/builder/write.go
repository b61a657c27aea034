package builder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/glyphseek/internal/artifact"
)

// WriteArtifact encodes a and atomically replaces path with it. It returns the
// number of bytes written.
func WriteArtifact(path string, a *artifact.Artifact, compress bool) (int, error) {
	encode := artifact.Encode
	if compress {
		encode = artifact.EncodeCompressed
	}
	data, err := encode(a)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".corpus-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to replace artifact: %w", err)
	}
	return len(data), nil
}
