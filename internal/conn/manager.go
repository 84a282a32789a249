// internal/conn/manager.go
package conn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"gnss-service/internal/datalog"
	"gnss-service/internal/decode"
	"gnss-service/internal/stream"
	"gnss-service/internal/utils"
)

// state machine event names
const (
	evConnectSerial = "connect_serial"
	evConnectFile   = "connect_file"
	evEstablished   = "established"
	evFail          = "fail"
	evDisconnect    = "disconnect"
)

// session bundles the resources of one connection attempt: the stream
// source, its decoder, the signal channels shared with the reader and
// consumer goroutines, and the per-session counters. A session never
// outlives its source; stale ready signals arriving after teardown are
// ignored via the closed flag.
type session struct {
	id      uuid.UUID
	source  stream.Source
	reader  *bufio.Reader
	decoder *decode.Decoder
	file    bool
	logger  *utils.StreamLogger

	// ready carries data-availability wakeups, never payload. Capacity
	// one so bursts of signals coalesce.
	ready        chan struct{}
	stop         chan struct{}
	readerDone   chan struct{}
	consumerDone chan struct{}

	closed *atomic.Bool
	eof    *atomic.Bool

	bytesRead    *atomic.Int64
	framesRead   *atomic.Int64
	framesRouted *atomic.Int64
	framesLogged *atomic.Int64
	parseErrors  *atomic.Int64
}

// countingReader counts bytes pulled from the source by the decoder
type countingReader struct {
	src io.Reader
	n   *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.src.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func newSession(source stream.Source, file bool, baseLogger *zap.Logger) *session {
	id := uuid.New()
	s := &session{
		id:           id,
		source:       source,
		file:         file,
		logger:       utils.NewStreamLogger(baseLogger, id.String(), source.Describe()),
		ready:        make(chan struct{}, 1),
		stop:         make(chan struct{}),
		readerDone:   make(chan struct{}),
		consumerDone: make(chan struct{}),
		closed:       atomic.NewBool(false),
		eof:          atomic.NewBool(false),
		bytesRead:    atomic.NewInt64(0),
		framesRead:   atomic.NewInt64(0),
		framesRouted: atomic.NewInt64(0),
		framesLogged: atomic.NewInt64(0),
		parseErrors:  atomic.NewInt64(0),
	}
	s.reader = bufio.NewReader(&countingReader{src: source, n: s.bytesRead})
	s.decoder = decode.NewDecoder(s.reader)
	return s
}

// signal emits one coalescing data-ready wakeup
func (s *session) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// stats takes a snapshot of the session counters
func (s *session) stats() Stats {
	return Stats{
		BytesRead:    s.bytesRead.Load(),
		FramesRead:   s.framesRead.Load(),
		FramesRouted: s.framesRouted.Load(),
		FramesLogged: s.framesLogged.Load(),
		ParseErrors:  s.parseErrors.Load(),
	}
}

// Manager owns the connection lifecycle. It holds at most one live
// session and at most one reader goroutine at any time; all transitions
// go through its state machine.
type Manager struct {
	logger       *zap.Logger
	filter       decode.Filter
	pollInterval time.Duration
	sink         datalog.Sink

	ubxHandler  Handler
	nmeaHandler Handler
	console     ConsoleSink

	obsMu     sync.RWMutex
	observers []Observer

	mu      sync.Mutex
	machine *fsm.FSM
	sess    *session
}

// NewManager creates a connection manager. sink may be nil when no
// datalogging is configured.
func NewManager(filter decode.Filter, pollInterval time.Duration, sink datalog.Sink, logger *zap.Logger) *Manager {
	if pollInterval <= 0 {
		pollInterval = 20 * time.Millisecond
	}

	m := &Manager{
		logger:       logger.With(zap.String("component", "conn")),
		filter:       filter,
		pollInterval: pollInterval,
		sink:         sink,
	}

	m.machine = fsm.NewFSM(
		string(StateDisconnected),
		fsm.Events{
			{Name: evConnectSerial, Src: []string{string(StateDisconnected)}, Dst: string(StateConnectingSerial)},
			{Name: evConnectFile, Src: []string{string(StateDisconnected)}, Dst: string(StateConnectingFile)},
			{Name: evEstablished, Src: []string{string(StateConnectingSerial), string(StateConnectingFile)}, Dst: string(StateConnected)},
			{Name: evFail, Src: []string{string(StateConnectingSerial), string(StateConnectingFile)}, Dst: string(StateDisconnected)},
			{Name: evDisconnect, Src: []string{string(StateConnected)}, Dst: string(StateDisconnected)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.notifyState(State(e.Dst))
			},
		},
	)

	return m
}

// SetUBXHandler sets the handler receiving dispatched UBX frames
func (m *Manager) SetUBXHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ubxHandler = h
}

// SetNMEAHandler sets the handler receiving dispatched NMEA frames
func (m *Manager) SetNMEAHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nmeaHandler = h
}

// SetConsole sets the console sink receiving routed frames and parse errors
func (m *Manager) SetConsole(c ConsoleSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.console = c
}

// AddObserver registers a lifecycle observer
func (m *Manager) AddObserver(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, o)
}

// Connect opens a serial source and starts the reader loop. A config
// naming no port is a no-op beyond a status notification. Open failures
// are terminal for the attempt and are never retried.
func (m *Manager) Connect(cfg *stream.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg == nil || cfg.Port == "" {
		m.notifyStatus(SeverityWarning, "no serial port configured")
		return stream.ErrNoSource
	}
	if !m.machine.Is(string(StateDisconnected)) {
		return ErrBusy
	}

	ctx := context.Background()
	if err := m.machine.Event(ctx, evConnectSerial); err != nil {
		return fmt.Errorf("connect rejected: %w", err)
	}

	source, err := stream.OpenSerial(cfg, m.logger)
	if err != nil {
		m.machine.Event(ctx, evFail)
		m.notifyStatus(SeverityError, fmt.Sprintf("serial connection error: %v", err))
		return err
	}

	m.startSession(source, false)
	return nil
}

// ConnectFile opens a replay-file source and starts the reader loop
func (m *Manager) ConnectFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if path == "" {
		m.notifyStatus(SeverityWarning, "no capture file selected")
		return stream.ErrNoSource
	}
	if !m.machine.Is(string(StateDisconnected)) {
		return ErrBusy
	}

	ctx := context.Background()
	if err := m.machine.Event(ctx, evConnectFile); err != nil {
		return fmt.Errorf("connect rejected: %w", err)
	}

	source, err := stream.OpenFile(path, m.logger)
	if err != nil {
		m.machine.Event(ctx, evFail)
		m.notifyStatus(SeverityError, fmt.Sprintf("file open error: %v", err))
		return err
	}

	m.startSession(source, true)
	return nil
}

// startSession transitions to connected and launches the reader and
// consumer goroutines. Called with m.mu held, from a connecting state.
func (m *Manager) startSession(source stream.Source, file bool) {
	s := newSession(source, file, m.logger)
	m.sess = s

	if m.sink != nil {
		// a cold sink is tolerated; frames simply go unlogged
		if err := m.sink.Open(source.Describe()); err != nil {
			m.logger.Warn("Failed to open datalog sink", zap.Error(err))
			m.notifyStatus(SeverityWarning, fmt.Sprintf("datalog unavailable: %v", err))
		}
	}

	m.machine.Event(context.Background(), evEstablished)
	m.notifyStatus(SeverityInfo, "Connected to "+source.Describe())

	s.logger.LogConnection("connect", true, nil)

	if file {
		go m.fileLoop(s)
	} else {
		go m.pollLoop(s)
	}
	go m.consumeLoop(s)
}

// Disconnect stops the reader loop, releases the stream source and the
// datalog sinks, and transitions to disconnected. Idempotent: calling
// it while disconnected is a no-op with no notification. I/O errors
// during teardown are swallowed; the disconnected state is always
// reached.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnectLocked()
}

func (m *Manager) disconnectLocked() error {
	if m.machine.Is(string(StateDisconnected)) || m.sess == nil {
		return nil
	}

	s := m.sess
	s.closed.Store(true)
	close(s.stop)

	// best-effort join; the loops observe stop at their next poll
	// boundary, so don't block forever on a wedged handle
	joinTimeout := 4*m.pollInterval + 100*time.Millisecond
	waitClosed(s.readerDone, joinTimeout)
	waitClosed(s.consumerDone, joinTimeout)

	// broken handles are expected during teardown
	if err := s.source.Close(); err != nil {
		m.logger.Debug("Source close error during teardown", zap.Error(err))
	}
	if m.sink != nil {
		if err := m.sink.Close(); err != nil {
			m.logger.Debug("Sink close error during teardown", zap.Error(err))
		}
	}

	m.sess = nil
	m.machine.Event(context.Background(), evDisconnect)
	m.notifyStatus(SeverityInfo, "Disconnected")

	s.logger.LogFrames(s.framesRead.Load(), s.parseErrors.Load(), s.bytesRead.Load())
	s.logger.LogConnection("disconnect", true, nil)
	return nil
}

// Write forwards bytes to the stream source. Write failures are
// reported to observers but never change the connection state.
func (m *Manager) Write(data []byte) error {
	m.mu.Lock()
	connected := m.machine.Is(string(StateConnected))
	s := m.sess
	m.mu.Unlock()

	if !connected || s == nil {
		return ErrNotConnected
	}

	if _, err := s.source.Write(data); err != nil {
		m.notifyWriteError(err)
		return err
	}
	return nil
}

// Flush drains the source read buffers, best-effort. No-op while
// disconnected.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.machine.Is(string(StateConnected)) || m.sess == nil {
		return nil
	}
	return m.sess.source.Flush()
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State(m.machine.Current())
}

// Status returns the current state with session counters
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{State: State(m.machine.Current())}
	if m.sess != nil {
		status.Source = m.sess.source.Describe()
		status.SessionID = m.sess.id.String()
		status.Stats = m.sess.stats()
	}
	return status
}

func (m *Manager) notifyState(state State) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnStateChange(state)
	}
}

func (m *Manager) notifyStatus(severity Severity, message string) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnStatus(severity, message)
	}
}

func (m *Manager) notifyWriteError(err error) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, o := range m.observers {
		o.OnWriteError(err)
	}
}

func waitClosed(ch <-chan struct{}, timeout time.Duration) {
	select {
	case <-ch:
	case <-time.After(timeout):
	}
}
