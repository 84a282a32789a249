// internal/datalog/filesink.go
package datalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"gnss-service/internal/decode"
)

// FileSink appends the raw bytes of every decoded frame to a
// timestamped binary logfile, one file per connection session
type FileSink struct {
	dir    string
	logger *zap.Logger

	mu   sync.Mutex
	file *os.File
}

// NewFileSink creates a raw datalog sink writing under dir
func NewFileSink(dir string, logger *zap.Logger) *FileSink {
	return &FileSink{
		dir:    dir,
		logger: logger.With(zap.String("sink", "datalog")),
	}
}

// Open creates a fresh logfile for this session
func (s *FileSink) Open(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create datalog directory: %w", err)
	}

	name := fmt.Sprintf("gnsslog-%s.ubx", time.Now().Format("20060102_150405"))
	path := filepath.Join(s.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create datalog file: %w", err)
	}

	s.file = file
	s.logger.Info("Datalog opened",
		zap.String("path", path),
		zap.String("source", source),
	)
	return nil
}

// Write appends the raw frame bytes; writes on a cold sink are skipped
func (s *FileSink) Write(raw []byte, msg decode.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	if _, err := s.file.Write(raw); err != nil {
		return fmt.Errorf("datalog write failed: %w", err)
	}
	return nil
}

// Close closes the session logfile
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("failed to close datalog file: %w", err)
	}
	s.logger.Info("Datalog closed")
	return nil
}
