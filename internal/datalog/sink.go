// internal/datalog/sink.go
package datalog

import (
	"gnss-service/internal/decode"
)

// Sink persists raw+parsed frame pairs. Open and Close are called in
// lockstep with the connection lifecycle; Write is called once per
// successfully decoded frame and must silently skip when the sink is not
// open.
type Sink interface {
	// Open prepares the sink for one connection session. The source
	// argument is a human-readable descriptor of the stream origin.
	Open(source string) error

	// Write persists one decoded frame
	Write(raw []byte, msg decode.Message) error

	// Close ends the session. Safe to call on a sink that never opened.
	Close() error
}

// MultiSink fans writes out to several sinks; lifecycle calls reach all
// of them even when one fails
type MultiSink []Sink

func (m MultiSink) Open(source string) error {
	var firstErr error
	for _, s := range m {
		if err := s.Open(source); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) Write(raw []byte, msg decode.Message) error {
	var firstErr error
	for _, s := range m {
		if err := s.Write(raw, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) Close() error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
