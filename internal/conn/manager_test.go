// internal/conn/manager_test.go
package conn

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gnss-service/internal/decode"
	"gnss-service/internal/stream"
)

// fakeSource is an in-memory stream.Source. Pending reports buffered
// bytes; once drained, Read reports io.EOF.
type fakeSource struct {
	mu         sync.Mutex
	buf        []byte
	closed     bool
	writes     [][]byte
	writeErr   error
	pendingErr error
	flushed    bool
}

func (f *fakeSource) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

func (f *fakeSource) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) Pending() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return false, f.pendingErr
	}
	return len(f.buf) > 0, nil
}

func (f *fakeSource) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed = true
	return nil
}

func (f *fakeSource) Describe() string { return "fake" }

// recordingObserver captures lifecycle notifications
type recordingObserver struct {
	mu          sync.Mutex
	states      []State
	statuses    []string
	severities  []Severity
	writeErrors []error
}

func (r *recordingObserver) OnStateChange(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingObserver) OnStatus(sev Severity, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.severities = append(r.severities, sev)
	r.statuses = append(r.statuses, msg)
}

func (r *recordingObserver) OnWriteError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeErrors = append(r.writeErrors, err)
}

func (r *recordingObserver) stateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recordingObserver) lastState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return ""
	}
	return r.states[len(r.states)-1]
}

func (r *recordingObserver) statusCount(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.statuses {
		if s == substr {
			n++
		}
	}
	return n
}

// recordingHandler captures dispatched frames
type recordingHandler struct {
	mu     sync.Mutex
	frames [][]byte
}

func (h *recordingHandler) Process(raw []byte, _ decode.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, append([]byte(nil), raw...))
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

// recordingConsole captures console updates and parse errors
type recordingConsole struct {
	mu      sync.Mutex
	updates [][]byte
	errors  []error
}

func (c *recordingConsole) Update(raw []byte, _ decode.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, append([]byte(nil), raw...))
}

func (c *recordingConsole) UpdateError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *recordingConsole) updateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func (c *recordingConsole) errorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors)
}

// recordingSink captures persisted frames
type recordingSink struct {
	mu     sync.Mutex
	opened []string
	frames [][]byte
	closed int
}

func (s *recordingSink) Open(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, source)
	return nil
}

func (s *recordingSink) Write(raw []byte, _ decode.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), raw...))
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *recordingSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func ubxFrame(t *testing.T, class, id byte, payload []byte) []byte {
	t.Helper()
	frame := []byte{0xB5, 0x62, class, id, byte(len(payload)), byte(len(payload) >> 8)}
	frame = append(frame, payload...)
	var ckA, ckB byte
	for _, b := range frame[2:] {
		ckA += b
		ckB += ckA
	}
	return append(frame, ckA, ckB)
}

func nmeaSentence(t *testing.T, body string) []byte {
	t.Helper()
	var ck byte
	for i := 0; i < len(body); i++ {
		ck ^= body[i]
	}
	const hex = "0123456789ABCDEF"
	return []byte("$" + body + "*" + string(hex[ck>>4]) + string(hex[ck&0x0F]) + "\r\n")
}

func newTestManager(filter decode.Filter, sink *recordingSink) (*Manager, *recordingObserver, *recordingHandler, *recordingHandler, *recordingConsole) {
	obs := &recordingObserver{}
	ubx := &recordingHandler{}
	nmea := &recordingHandler{}
	console := &recordingConsole{}

	var m *Manager
	if sink != nil {
		m = NewManager(filter, 5*time.Millisecond, sink, zap.NewNop())
	} else {
		m = NewManager(filter, 5*time.Millisecond, nil, zap.NewNop())
	}
	m.AddObserver(obs)
	m.SetUBXHandler(ubx)
	m.SetNMEAHandler(nmea)
	m.SetConsole(console)
	return m, obs, ubx, nmea, console
}

// connectFake starts a session over an injected source, bypassing the
// OS port or file open
func connectFake(t *testing.T, m *Manager, src stream.Source, file bool) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := evConnectSerial
	if file {
		ev = evConnectFile
	}
	require.NoError(t, m.machine.Event(context.Background(), ev))
	m.startSession(src, file)
}

func TestConnectNoPort(t *testing.T) {
	m, obs, _, _, _ := newTestManager(decode.FilterAll, nil)

	err := m.Connect(&stream.Config{})
	assert.ErrorIs(t, err, stream.ErrNoSource)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 0, obs.stateCount())
}

func TestConnectWhileBusy(t *testing.T) {
	m, _, _, _, _ := newTestManager(decode.FilterAll, nil)
	src := &fakeSource{}
	connectFake(t, m, src, false)
	defer m.Disconnect()

	err := m.Connect(&stream.Config{Port: "/dev/ttyACM0"})
	assert.ErrorIs(t, err, ErrBusy)
	err = m.ConnectFile("/tmp/capture.ubx")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestSerialNoSpuriousDispatch(t *testing.T) {
	m, _, ubx, nmea, console := newTestManager(decode.FilterAll, nil)
	src := &fakeSource{}
	connectFake(t, m, src, false)

	// several poll intervals with nothing pending
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 0, ubx.count())
	assert.Equal(t, 0, nmea.count())
	assert.Equal(t, 0, console.updateCount())
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, int64(0), m.Status().Stats.FramesRead)

	require.NoError(t, m.Disconnect())
}

func TestSerialDispatchPreservesOrder(t *testing.T) {
	m, _, ubx, nmea, _ := newTestManager(decode.FilterAll, nil)

	f1 := ubxFrame(t, 0x01, 0x07, make([]byte, 8))
	f2 := nmeaSentence(t, "GNGGA,132059.00,5327.0,N,00214.4,W,1,12,0.9,37.0,M,48.0,M,,")
	f3 := ubxFrame(t, 0x0A, 0x04, nil)

	src := &fakeSource{}
	src.buf = append(src.buf, f1...)
	src.buf = append(src.buf, f2...)
	src.buf = append(src.buf, f3...)

	connectFake(t, m, src, false)
	defer m.Disconnect()

	require.Eventually(t, func() bool {
		return ubx.count() == 2 && nmea.count() == 1
	}, time.Second, 5*time.Millisecond)

	ubx.mu.Lock()
	assert.Equal(t, f1, ubx.frames[0])
	assert.Equal(t, f3, ubx.frames[1])
	ubx.mu.Unlock()
}

func TestFileReplayAndAutoDisconnect(t *testing.T) {
	m, obs, ubx, nmea, _ := newTestManager(decode.FilterAll, nil)

	src := &fakeSource{}
	src.buf = append(src.buf, ubxFrame(t, 0x01, 0x07, make([]byte, 4))...)
	src.buf = append(src.buf, nmeaSentence(t, "GNRMC,132059.00,A,5327.0,N,00214.4,W,0.046,,240126,,,A,V")...)
	src.buf = append(src.buf, ubxFrame(t, 0x06, 0x01, []byte{0x01, 0x07, 0x01})...)

	connectFake(t, m, src, true)

	require.Eventually(t, func() bool {
		return m.State() == StateDisconnected
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, ubx.count())
	assert.Equal(t, 1, nmea.count())
	assert.Equal(t, 1, obs.statusCount("end of file reached"))
	assert.True(t, src.closed)
}

func TestDisconnectIdempotent(t *testing.T) {
	m, obs, _, _, _ := newTestManager(decode.FilterAll, nil)
	src := &fakeSource{}
	connectFake(t, m, src, false)

	require.NoError(t, m.Disconnect())
	stateChanges := obs.stateCount()
	assert.Equal(t, StateDisconnected, obs.lastState())

	// repeated disconnects add nothing
	require.NoError(t, m.Disconnect())
	require.NoError(t, m.Disconnect())
	assert.Equal(t, stateChanges, obs.stateCount())
	assert.Equal(t, 1, obs.statusCount("Disconnected"))
}

func TestFilteredFramePersistedNotRouted(t *testing.T) {
	sink := &recordingSink{}
	m, _, ubx, nmea, console := newTestManager(decode.FilterUBX, sink)

	src := &fakeSource{}
	src.buf = append(src.buf, nmeaSentence(t, "GNGGA,132059.00,5327.0,N,00214.4,W,1,12,0.9,37.0,M,48.0,M,,")...)

	connectFake(t, m, src, true)

	require.Eventually(t, func() bool {
		return m.State() == StateDisconnected
	}, time.Second, 5*time.Millisecond)

	// the datalog captures the wire even when the view excludes it
	assert.Equal(t, 1, sink.frameCount())
	assert.Equal(t, 0, nmea.count())
	assert.Equal(t, 0, ubx.count())
	assert.Equal(t, 0, console.updateCount())
}

func TestUnknownChunkPassThroughOnlyWhenFilterAll(t *testing.T) {
	for _, tc := range []struct {
		filter decode.Filter
		want   int
	}{
		{decode.FilterAll, 1},
		{decode.FilterUBX, 0},
	} {
		m, _, ubx, nmea, console := newTestManager(tc.filter, nil)

		src := &fakeSource{buf: []byte{0x7F, 0x01, 0x02, 0x03}}
		connectFake(t, m, src, true)

		require.Eventually(t, func() bool {
			return m.State() == StateDisconnected
		}, time.Second, 5*time.Millisecond)

		assert.Equal(t, tc.want, console.updateCount(), "filter %s", tc.filter)
		assert.Equal(t, 0, ubx.count())
		assert.Equal(t, 0, nmea.count())
	}
}

func TestParseErrorRecovery(t *testing.T) {
	m, _, ubx, _, console := newTestManager(decode.FilterAll, nil)

	good := ubxFrame(t, 0x01, 0x07, make([]byte, 4))
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xFF // break the checksum

	src := &fakeSource{}
	src.buf = append(src.buf, good...)
	src.buf = append(src.buf, good...)
	src.buf = append(src.buf, bad...)
	src.buf = append(src.buf, good...)
	src.buf = append(src.buf, good...)

	connectFake(t, m, src, true)

	require.Eventually(t, func() bool {
		return m.State() == StateDisconnected
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 4, ubx.count())
	assert.Equal(t, 1, console.errorCount())
	console.mu.Lock()
	var parseErr *decode.ParseError
	assert.ErrorAs(t, console.errors[0], &parseErr)
	console.mu.Unlock()
}

func TestWriteDisconnected(t *testing.T) {
	m, _, _, _, _ := newTestManager(decode.FilterAll, nil)
	err := m.Write([]byte{0xB5, 0x62})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWriteErrorKeepsConnection(t *testing.T) {
	m, obs, _, _, _ := newTestManager(decode.FilterAll, nil)
	src := &fakeSource{writeErr: errors.New("input/output error")}
	connectFake(t, m, src, false)
	defer m.Disconnect()

	err := m.Write([]byte{0xB5, 0x62, 0x06, 0x04})
	require.Error(t, err)

	// a failed write reports but never tears the session down
	assert.Equal(t, StateConnected, m.State())
	obs.mu.Lock()
	assert.Len(t, obs.writeErrors, 1)
	obs.mu.Unlock()
}

func TestWriteForwarded(t *testing.T) {
	m, _, _, _, _ := newTestManager(decode.FilterAll, nil)
	src := &fakeSource{}
	connectFake(t, m, src, false)
	defer m.Disconnect()

	payload := ubxFrame(t, 0x06, 0x04, []byte{0x00, 0x00, 0x01, 0x00})
	require.NoError(t, m.Write(payload))

	src.mu.Lock()
	require.Len(t, src.writes, 1)
	assert.Equal(t, payload, src.writes[0])
	src.mu.Unlock()
}

func TestFlush(t *testing.T) {
	m, _, _, _, _ := newTestManager(decode.FilterAll, nil)

	// no-op while disconnected
	require.NoError(t, m.Flush())

	src := &fakeSource{}
	connectFake(t, m, src, false)
	defer m.Disconnect()

	require.NoError(t, m.Flush())
	src.mu.Lock()
	assert.True(t, src.flushed)
	src.mu.Unlock()
}

func TestPendingErrorTearsDown(t *testing.T) {
	m, obs, _, _, _ := newTestManager(decode.FilterAll, nil)
	src := &fakeSource{pendingErr: errors.New("device reports readiness to read but returned no data")}
	connectFake(t, m, src, false)

	require.Eventually(t, func() bool {
		return m.State() == StateDisconnected
	}, time.Second, 5*time.Millisecond)

	obs.mu.Lock()
	found := false
	for i, sev := range obs.severities {
		if sev == SeverityError && obs.statuses[i] != "" {
			found = true
		}
	}
	obs.mu.Unlock()
	assert.True(t, found, "expected an error severity status")
	assert.True(t, src.closed)
}

func TestStatusSnapshot(t *testing.T) {
	m, _, _, _, _ := newTestManager(decode.FilterAll, nil)

	status := m.Status()
	assert.Equal(t, StateDisconnected, status.State)
	assert.Empty(t, status.SessionID)

	src := &fakeSource{}
	src.buf = append(src.buf, ubxFrame(t, 0x01, 0x07, make([]byte, 4))...)
	connectFake(t, m, src, false)
	defer m.Disconnect()

	require.Eventually(t, func() bool {
		return m.Status().Stats.FramesRead == 1
	}, time.Second, 5*time.Millisecond)

	status = m.Status()
	assert.Equal(t, StateConnected, status.State)
	assert.Equal(t, "fake", status.Source)
	assert.NotEmpty(t, status.SessionID)
	assert.Positive(t, status.Stats.BytesRead)
}
