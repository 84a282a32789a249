// internal/datalog/filesink_test.go
package datalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gnss-service/internal/decode"
)

func TestFileSinkColdWriteSkipped(t *testing.T) {
	sink := NewFileSink(t.TempDir(), zap.NewNop())

	// never opened: writes vanish, close is a no-op
	require.NoError(t, sink.Write([]byte{0xB5, 0x62}, nil))
	require.NoError(t, sink.Close())
}

func TestFileSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, zap.NewNop())

	require.NoError(t, sink.Open("/dev/ttyACM0 @ 9600"))
	require.NoError(t, sink.Write([]byte{0xB5, 0x62, 0x01}, nil))
	require.NoError(t, sink.Write([]byte{0x02, 0x03}, nil))
	require.NoError(t, sink.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "gnsslog-")

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xB5, 0x62, 0x01, 0x02, 0x03}, data)

	// close twice is safe
	require.NoError(t, sink.Close())
}

func TestFileSinkReopenKeepsFirstFile(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, zap.NewNop())

	require.NoError(t, sink.Open("first"))
	require.NoError(t, sink.Open("second"))
	defer sink.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type countingSink struct {
	opens, writes, closes int
	err                   error
}

func (c *countingSink) Open(string) error {
	c.opens++
	return c.err
}

func (c *countingSink) Write([]byte, decode.Message) error {
	c.writes++
	return c.err
}

func (c *countingSink) Close() error {
	c.closes++
	return c.err
}

func TestMultiSinkReachesAllDespiteError(t *testing.T) {
	failing := &countingSink{err: os.ErrPermission}
	healthy := &countingSink{}
	multi := MultiSink{failing, healthy}

	err := multi.Open("source")
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, 1, healthy.opens)

	err = multi.Write([]byte{0x01}, nil)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, 1, healthy.writes)

	err = multi.Close()
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, 1, healthy.closes)
}
