// internal/stream/stream.go
package stream

import (
	"errors"
	"io"
	"time"
)

var (
	// ErrNoSource is returned when the configuration names no viable source
	ErrNoSource = errors.New("no stream source configured")

	// ErrReadOnly is returned for writes to a replay-file source
	ErrReadOnly = errors.New("stream source is read-only")
)

// Config holds the parameters needed to open a serial source
type Config struct {
	Port     string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	Timeout  time.Duration
}

// Source is the uniform byte-stream abstraction over a live serial port
// or a replay file. Pending is the only method intended for concurrent
// use: it probes read availability without handing out data, so a reader
// goroutine can poll it while a consumer owns Read.
type Source interface {
	io.ReadWriteCloser

	// Pending reports whether at least one byte can be read without
	// blocking beyond the source's poll timeout
	Pending() (bool, error)

	// Flush discards buffered input, best-effort
	Flush() error

	// Describe returns a human-readable source identifier
	Describe() string
}
