// internal/conn/dispatcher.go
package conn

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"gnss-service/internal/decode"
)

// consumeLoop is the consumer goroutine. Each ready signal triggers at
// most one frame dispatch; it exits on stop or when the stream ends.
func (m *Manager) consumeLoop(s *session) {
	defer close(s.consumerDone)

	for {
		select {
		case <-s.stop:
			return
		case <-s.ready:
			if s.closed.Load() {
				return
			}
			if done := m.dispatch(s); done {
				return
			}
			// the decoder may have buffered several frames from one
			// read; the port then looks idle, so keep the wakeups
			// coming until the buffer is drained
			if !s.file && s.reader.Buffered() > 0 {
				s.signal()
			}
		}
	}
}

// dispatch pulls one frame from the decoder and routes it. Returns
// true when the session should stop consuming (end of stream or a
// fatal read error).
func (m *Manager) dispatch(s *session) bool {
	// a ready signal can outlive the data that prompted it; for serial
	// sessions, verify availability so a spurious wakeup never blocks
	// the consumer inside a read
	if !s.file && s.reader.Buffered() == 0 {
		pending, err := s.source.Pending()
		if err != nil || !pending {
			return false
		}
	}

	frame, err := s.decoder.ReadFrame()
	if err != nil {
		return m.handleReadError(s, err)
	}

	s.framesRead.Inc()
	m.route(s, frame)
	return false
}

func (m *Manager) handleReadError(s *session, err error) bool {
	if errors.Is(err, io.EOF) {
		// exactly one end-of-stream notification per session
		if s.eof.CompareAndSwap(false, true) {
			m.notifyStatus(SeverityInfo, "end of file reached")
			go m.Disconnect()
		}
		return true
	}

	var parseErr *decode.ParseError
	if errors.As(err, &parseErr) {
		// corrupt frame; the decoder already resynchronized, so the
		// session carries on with the next frame
		s.parseErrors.Inc()
		m.logger.Debug("Frame parse error",
			zap.String("session_id", s.id.String()),
			zap.Error(parseErr),
		)
		if c := m.consoleSink(); c != nil {
			c.UpdateError(parseErr)
		}
		return false
	}

	if s.closed.Load() {
		return true
	}
	m.notifyStatus(SeverityError, fmt.Sprintf("receiver stream lost: %v", err))
	go m.Disconnect()
	return true
}

// route classifies a frame against the protocol filter, feeds the
// console and the protocol handler, then persists the raw bytes.
// Persistence happens regardless of the filter: the datalog is a
// capture of the wire, not of the view.
func (m *Manager) route(s *session, frame *decode.Frame) {
	proto := frame.Protocol()

	switch proto {
	case decode.ProtocolUBX, decode.ProtocolNMEA:
		if m.filter.Accepts(proto) {
			s.framesRouted.Inc()
			if c := m.consoleSink(); c != nil {
				c.Update(frame.Raw, frame.Msg)
			}
			if h := m.handlerFor(proto); h != nil {
				h.Process(frame.Raw, frame.Msg)
			}
		}
	default:
		// unidentified chunks reach the console only when the filter
		// is wide open; they are never handed to a protocol handler
		if m.filter.PassThrough() {
			s.framesRouted.Inc()
			if c := m.consoleSink(); c != nil {
				c.Update(frame.Raw, frame.Msg)
			}
		}
	}

	if m.sink != nil {
		if err := m.sink.Write(frame.Raw, frame.Msg); err != nil {
			m.logger.Warn("Datalog write failed", zap.Error(err))
		} else {
			s.framesLogged.Inc()
		}
	}
}

func (m *Manager) consoleSink() ConsoleSink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.console
}

func (m *Manager) handlerFor(proto decode.Protocol) Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch proto {
	case decode.ProtocolUBX:
		return m.ubxHandler
	case decode.ProtocolNMEA:
		return m.nmeaHandler
	default:
		return nil
	}
}
