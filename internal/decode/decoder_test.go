// internal/decode/decoder_test.go
package decode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ubxFrame builds a valid UBX frame for tests
func ubxFrame(class, id byte, payload []byte) []byte {
	frame := []byte{ubxSync1, ubxSync2, class, id,
		byte(len(payload)), byte(len(payload) >> 8)}
	frame = append(frame, payload...)
	ckA, ckB := ubxChecksum(frame[2:])
	return append(frame, ckA, ckB)
}

// nmeaSentence builds a valid NMEA sentence for tests
func nmeaSentence(body string) []byte {
	return []byte(fmt.Sprintf("$%s*%02X\r\n", body, nmeaChecksum(body)))
}

func newTestDecoder(data []byte) *Decoder {
	return NewDecoder(bufio.NewReader(bytes.NewReader(data)))
}

func TestReadFrameUBX(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	raw := ubxFrame(0x01, 0x07, payload)

	d := newTestDecoder(raw)
	frame, err := d.ReadFrame()
	require.NoError(t, err)

	assert.Equal(t, ProtocolUBX, frame.Protocol())
	assert.Equal(t, raw, frame.Raw)

	msg, ok := frame.Msg.(*UBXMessage)
	require.True(t, ok)
	assert.Equal(t, byte(0x01), msg.Class)
	assert.Equal(t, byte(0x07), msg.ID)
	assert.Equal(t, payload, msg.Payload)

	_, err = d.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameNMEA(t *testing.T) {
	raw := nmeaSentence("GPGGA,092725.00,4717.11399,N,00833.91590,E,1,08,1.01,499.6,M,48.0,M,,")

	d := newTestDecoder(raw)
	frame, err := d.ReadFrame()
	require.NoError(t, err)

	assert.Equal(t, ProtocolNMEA, frame.Protocol())
	assert.Equal(t, raw, frame.Raw)

	msg, ok := frame.Msg.(*NMEASentence)
	require.True(t, ok)
	assert.Equal(t, "GP", msg.Talker)
	assert.Equal(t, "GGA", msg.Type)
	assert.Equal(t, "092725.00", msg.Field(0))
	assert.Equal(t, "4717.11399", msg.Field(1))
}

func TestReadFrameProprietaryNMEA(t *testing.T) {
	d := newTestDecoder(nmeaSentence("PSTMSRR"))
	frame, err := d.ReadFrame()
	require.NoError(t, err)

	msg, ok := frame.Msg.(*NMEASentence)
	require.True(t, ok)
	assert.Equal(t, "P", msg.Talker)
	assert.Equal(t, "STMSRR", msg.Type)
}

func TestReadFrameUnknownChunk(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x7F, 0x42}) // junk before the first sync
	buf.Write(ubxFrame(0x06, 0x01, []byte{0xF0, 0x00}))

	d := newTestDecoder(buf.Bytes())

	frame, err := d.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, ProtocolUnknown, frame.Protocol())
	assert.Equal(t, []byte{0x00, 0x7F, 0x42}, frame.Raw)

	frame, err = d.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, ProtocolUBX, frame.Protocol())
}

func TestReadFrameUBXChecksumError(t *testing.T) {
	raw := ubxFrame(0x01, 0x07, []byte{0x01, 0x02})
	raw[len(raw)-1] ^= 0xFF

	good := nmeaSentence("GPRMC,,V,,,,,,,,,,N")
	d := newTestDecoder(append(raw, good...))

	_, err := d.ReadFrame()
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, ProtocolUBX, parseErr.Proto)

	// decoder resynchronizes on the next frame
	frame, err := d.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, ProtocolNMEA, frame.Protocol())
}

func TestReadFrameNMEAChecksumError(t *testing.T) {
	raw := []byte("$GPGGA,092725.00,4717.11399,N*00\r\n")
	d := newTestDecoder(raw)

	_, err := d.ReadFrame()
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, ProtocolNMEA, parseErr.Proto)
}

func TestReadFrameNMEAMissingChecksum(t *testing.T) {
	d := newTestDecoder([]byte("$GPGGA,092725.00\r\n"))

	_, err := d.ReadFrame()
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestReadFrameImplausibleUBXLength(t *testing.T) {
	raw := []byte{ubxSync1, ubxSync2, 0x01, 0x07, 0xFF, 0xFF}

	d := newTestDecoder(raw)
	_, err := d.ReadFrame()
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Reason, "implausible")
}

func TestReadFrameTruncatedUBXIsEOF(t *testing.T) {
	raw := ubxFrame(0x01, 0x07, []byte{0x01, 0x02, 0x03})
	d := newTestDecoder(raw[:len(raw)-4])

	_, err := d.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameSequencePreservesOrder(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(ubxFrame(0x01, 0x07, []byte{0x01}))
	buf.Write(nmeaSentence("GPGSV,1,1,00"))
	buf.Write(ubxFrame(0x06, 0x01, nil))

	d := newTestDecoder(buf.Bytes())

	protocols := []Protocol{}
	for {
		frame, err := d.ReadFrame()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		protocols = append(protocols, frame.Protocol())
	}

	assert.Equal(t, []Protocol{ProtocolUBX, ProtocolNMEA, ProtocolUBX}, protocols)
}

func TestFilterAccepts(t *testing.T) {
	tests := []struct {
		filter      Filter
		proto       Protocol
		accepted    bool
		passThrough bool
	}{
		{FilterUBX, ProtocolUBX, true, false},
		{FilterUBX, ProtocolNMEA, false, false},
		{FilterUBX, ProtocolUnknown, false, false},
		{FilterNMEA, ProtocolNMEA, true, false},
		{FilterNMEA, ProtocolUBX, false, false},
		{FilterAll, ProtocolUBX, true, true},
		{FilterAll, ProtocolNMEA, true, true},
		{FilterAll, ProtocolUnknown, false, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.accepted, tt.filter.Accepts(tt.proto),
			"filter %s proto %s", tt.filter, tt.proto)
		assert.Equal(t, tt.passThrough, tt.filter.PassThrough(),
			"filter %s", tt.filter)
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("ubx")
	require.NoError(t, err)
	assert.Equal(t, FilterUBX, f)

	_, err = ParseFilter("bogus")
	assert.Error(t, err)
}
