// internal/conn/reader.go
package conn

import (
	"fmt"
	"time"
)

// pollLoop is the reader goroutine for serial sessions. It polls the
// source for buffered data at the configured interval and emits a
// coalescing ready signal whenever bytes are waiting. Payload never
// travels through the channel; the consumer pulls frames from the
// source itself.
func (m *Manager) pollLoop(s *session) {
	defer close(s.readerDone)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			pending, err := s.source.Pending()
			if err != nil {
				// the handle going away mid-poll is the normal
				// teardown race; anything else means the device
				// was unplugged or the OS revoked the port
				if s.closed.Load() {
					return
				}
				m.notifyStatus(SeverityError, fmt.Sprintf("receiver stream lost: %v", err))
				go m.Disconnect()
				return
			}
			if pending {
				s.signal()
			}
		}
	}
}

// fileLoop is the reader goroutine for file sessions. The blocking
// send paces replay to the consumer's dispatch rate: exactly one
// signal per consumed frame, no timer involved.
func (m *Manager) fileLoop(s *session) {
	defer close(s.readerDone)

	for {
		select {
		case <-s.stop:
			return
		case s.ready <- struct{}{}:
		}
	}
}
