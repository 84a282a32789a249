// internal/stream/serial.go
package stream

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const stashReadSize = 512

// SerialSource adapts a go.bug.st serial port to the Source contract.
// The port is opened with a short read timeout; bytes pulled while
// probing availability are stashed and served to the next Read, so every
// port read funnels through one mutex and frame bytes never interleave.
type SerialSource struct {
	port   serial.Port
	config *Config
	logger *zap.Logger

	mu     sync.Mutex
	stash  []byte
	closed *atomic.Bool
}

// OpenSerial opens a serial port source
func OpenSerial(config *Config, logger *zap.Logger) (*SerialSource, error) {
	if config == nil || config.Port == "" {
		return nil, ErrNoSource
	}

	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
	}

	switch config.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	switch config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	logger.Info("Opening serial port",
		zap.String("port", config.Port),
		zap.Int("baud_rate", config.BaudRate),
	)

	port, err := serial.Open(config.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", config.Port, err)
	}

	if err := port.SetReadTimeout(config.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &SerialSource{
		port:   port,
		config: config,
		logger: logger.With(zap.String("port", config.Port)),
		closed: atomic.NewBool(false),
	}, nil
}

// fill performs one timed port read into the stash. Callers hold s.mu.
func (s *SerialSource) fill() error {
	buf := make([]byte, stashReadSize)
	n, err := s.port.Read(buf)
	if n > 0 {
		s.stash = append(s.stash, buf[:n]...)
	}
	if err != nil {
		if s.closed.Load() {
			return io.EOF
		}
		return fmt.Errorf("serial read failed: %w", err)
	}
	return nil
}

// Pending reports whether buffered or freshly arrived bytes are available
func (s *SerialSource) Pending() (bool, error) {
	if s.closed.Load() {
		return false, io.EOF
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.stash) > 0 {
		return true, nil
	}
	if err := s.fill(); err != nil {
		return false, err
	}
	return len(s.stash) > 0, nil
}

// Read serves stashed bytes first, then blocks in timed port reads until
// at least one byte arrives or the source is closed
func (s *SerialSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.stash) == 0 {
		if s.closed.Load() {
			return 0, io.EOF
		}
		if err := s.fill(); err != nil {
			return 0, err
		}
	}

	n := copy(p, s.stash)
	s.stash = s.stash[n:]
	return n, nil
}

// Write forwards to the serial port
func (s *SerialSource) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, io.EOF
	}

	n, err := s.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("serial write failed: %w", err)
	}
	if n != len(p) {
		return n, fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(p))
	}
	return n, nil
}

// Flush discards the stash and the driver input buffer
func (s *SerialSource) Flush() error {
	s.mu.Lock()
	s.stash = nil
	s.mu.Unlock()

	if s.closed.Load() {
		return nil
	}
	return s.port.ResetInputBuffer()
}

// Close closes the serial port. Safe to call more than once.
func (s *SerialSource) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	s.logger.Info("Serial port closed")
	return nil
}

// Describe returns the port identifier with its baud rate
func (s *SerialSource) Describe() string {
	return fmt.Sprintf("%s @ %d", s.config.Port, s.config.BaudRate)
}
