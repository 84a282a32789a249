// internal/conn/conn.go

// Package conn implements the receiver connection lifecycle: a state
// machine that owns the stream source, a background reader goroutine
// that signals data availability, and a dispatcher that pulls decoded
// frames and routes them to protocol handlers and datalog sinks.
package conn

import (
	"errors"

	"gnss-service/internal/decode"
)

// State is one connection lifecycle state
type State string

const (
	StateDisconnected     State = "disconnected"
	StateConnectingSerial State = "connecting_serial"
	StateConnectingFile   State = "connecting_file"
	StateConnected        State = "connected"
)

// Severity is the presentation hint attached to status notifications
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

var (
	// ErrNotConnected is returned for operations that need an open stream
	ErrNotConnected = errors.New("receiver not connected")

	// ErrBusy is returned when a connect is attempted while a
	// connection is already active
	ErrBusy = errors.New("connection already active")
)

// Handler consumes dispatched frames for one protocol family
type Handler interface {
	Process(raw []byte, msg decode.Message)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(raw []byte, msg decode.Message)

func (f HandlerFunc) Process(raw []byte, msg decode.Message) { f(raw, msg) }

// ConsoleSink receives every frame routed per the protocol filter, plus
// per-frame parse errors
type ConsoleSink interface {
	Update(raw []byte, msg decode.Message)
	UpdateError(err error)
}

// Observer receives connection lifecycle notifications. Callbacks are
// invoked from manager goroutines and must not call back into the
// Manager.
type Observer interface {
	OnStateChange(state State)
	OnStatus(severity Severity, message string)
	OnWriteError(err error)
}

// Stats is a snapshot of per-session stream counters
type Stats struct {
	BytesRead    int64 `json:"bytes_read"`
	FramesRead   int64 `json:"frames_read"`
	FramesRouted int64 `json:"frames_routed"`
	FramesLogged int64 `json:"frames_logged"`
	ParseErrors  int64 `json:"parse_errors"`
}

// Status describes the current connection for API consumers
type Status struct {
	State     State  `json:"state"`
	Source    string `json:"source,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Stats     Stats  `json:"stats"`
}
