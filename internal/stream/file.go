// internal/stream/file.go
package stream

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// FileSource replays a binary capture file through the Source contract.
// A file is assumed to have pending bytes until a read observes EOF.
type FileSource struct {
	file   *os.File
	path   string
	logger *zap.Logger
	eof    *atomic.Bool
	closed *atomic.Bool
}

// OpenFile opens a read-only replay source from a capture file
func OpenFile(path string, logger *zap.Logger) (*FileSource, error) {
	if path == "" {
		return nil, ErrNoSource
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	logger.Info("Opened capture file", zap.String("path", path))

	return &FileSource{
		file:   file,
		path:   path,
		logger: logger.With(zap.String("path", path)),
		eof:    atomic.NewBool(false),
		closed: atomic.NewBool(false),
	}, nil
}

// Pending reports pending bytes until EOF has been observed
func (f *FileSource) Pending() (bool, error) {
	if f.closed.Load() {
		return false, io.EOF
	}
	return !f.eof.Load(), nil
}

// Read reads from the underlying file
func (f *FileSource) Read(p []byte) (int, error) {
	if f.closed.Load() {
		return 0, io.EOF
	}

	n, err := f.file.Read(p)
	if err == io.EOF {
		f.eof.Store(true)
	}
	return n, err
}

// Write is rejected for replay files
func (f *FileSource) Write(p []byte) (int, error) {
	return 0, ErrReadOnly
}

// Flush is a no-op for files
func (f *FileSource) Flush() error {
	return nil
}

// Close closes the file. Safe to call more than once.
func (f *FileSource) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	return f.file.Close()
}

// Describe returns the file path
func (f *FileSource) Describe() string {
	return f.path
}
