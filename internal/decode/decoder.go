// internal/decode/decoder.go
package decode

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	ubxSync1 = 0xB5
	ubxSync2 = 0x62

	// maxUBXPayload bounds the declared payload length so a corrupt
	// length field cannot swallow the rest of the stream
	maxUBXPayload = 4096

	// maxNMEALength bounds one sentence; the standard caps at 82 but
	// proprietary sentences routinely exceed it
	maxNMEALength = 512

	// maxChunk bounds one unknown-protocol chunk
	maxChunk = 512
)

// ParseError reports single-frame corruption. The decoder has already
// consumed the offending bytes, so the caller can continue reading.
type ParseError struct {
	Proto  Protocol
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s parse error: %s", e.Proto, e.Reason)
}

// Decoder pulls complete UBX or NMEA frames from a buffered byte stream,
// resynchronizing on the next plausible sync byte after an error.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a decoder positioned on r
func NewDecoder(r *bufio.Reader) *Decoder {
	return &Decoder{r: r}
}

// ReadFrame reads exactly one frame from the stream. It returns io.EOF
// when the source is exhausted (including mid-frame truncation at end of
// a replay file) and *ParseError for recoverable single-frame corruption.
func (d *Decoder) ReadFrame() (*Frame, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return nil, eofOr(err)
	}

	switch {
	case b == ubxSync1:
		next, err := d.r.Peek(1)
		if err != nil {
			return nil, eofOr(err)
		}
		if next[0] != ubxSync2 {
			return d.readChunk(b)
		}
		d.r.ReadByte()
		return d.readUBX()
	case b == '$':
		return d.readNMEA()
	default:
		return d.readChunk(b)
	}
}

// readUBX reads one UBX frame; both sync bytes are already consumed
func (d *Decoder) readUBX() (*Frame, error) {
	header := make([]byte, 4) // class, id, length (LE16)
	if _, err := io.ReadFull(d.r, header); err != nil {
		return nil, eofOr(err)
	}

	length := int(binary.LittleEndian.Uint16(header[2:4]))
	if length > maxUBXPayload {
		return nil, &ParseError{
			Proto:  ProtocolUBX,
			Reason: fmt.Sprintf("implausible payload length %d", length),
		}
	}

	body := make([]byte, length+2) // payload + CK_A, CK_B
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, eofOr(err)
	}

	raw := make([]byte, 0, 6+length+2)
	raw = append(raw, ubxSync1, ubxSync2)
	raw = append(raw, header...)
	raw = append(raw, body...)

	ckA, ckB := ubxChecksum(raw[2 : len(raw)-2])
	if ckA != raw[len(raw)-2] || ckB != raw[len(raw)-1] {
		return nil, &ParseError{
			Proto: ProtocolUBX,
			Reason: fmt.Sprintf("checksum mismatch on %02X-%02X",
				header[0], header[1]),
		}
	}

	msg := &UBXMessage{
		Class:   header[0],
		ID:      header[1],
		Payload: body[:length],
	}
	return &Frame{Raw: raw, Msg: msg}, nil
}

// readNMEA reads one NMEA sentence; the leading '$' is already consumed
func (d *Decoder) readNMEA() (*Frame, error) {
	line := make([]byte, 0, 96)
	line = append(line, '$')

	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, eofOr(err)
		}
		line = append(line, b)
		if b == '\n' {
			break
		}
		if len(line) > maxNMEALength {
			return nil, &ParseError{
				Proto:  ProtocolNMEA,
				Reason: "sentence exceeds maximum length",
			}
		}
	}

	body := strings.TrimRight(string(line[1:]), "\r\n")

	star := strings.LastIndexByte(body, '*')
	if star < 0 || len(body)-star != 3 {
		return nil, &ParseError{
			Proto:  ProtocolNMEA,
			Reason: "missing checksum",
		}
	}

	want, err := hex.DecodeString(body[star+1:])
	if err != nil {
		return nil, &ParseError{
			Proto:  ProtocolNMEA,
			Reason: "malformed checksum",
		}
	}
	if got := nmeaChecksum(body[:star]); got != want[0] {
		return nil, &ParseError{
			Proto: ProtocolNMEA,
			Reason: fmt.Sprintf("checksum mismatch: got %02X want %02X",
				got, want[0]),
		}
	}

	fields := strings.Split(body[:star], ",")
	talker, typ := parseNMEAAddress(fields[0])
	msg := &NMEASentence{
		Talker: talker,
		Type:   typ,
		Fields: fields[1:],
	}
	return &Frame{Raw: line, Msg: msg}, nil
}

// readChunk collects bytes up to the next plausible sync byte and tags
// them as unknown protocol
func (d *Decoder) readChunk(first byte) (*Frame, error) {
	chunk := []byte{first}
	for len(chunk) < maxChunk {
		next, err := d.r.Peek(1)
		if err != nil {
			// end of input flushes the partial chunk
			break
		}
		if next[0] == ubxSync1 || next[0] == '$' {
			break
		}
		b, _ := d.r.ReadByte()
		chunk = append(chunk, b)
	}
	return &Frame{Raw: chunk, Msg: &RawChunk{Data: chunk}}, nil
}

// ubxChecksum computes the 8-bit Fletcher checksum over class, id,
// length and payload
func ubxChecksum(data []byte) (ckA, ckB byte) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// nmeaChecksum XORs all characters between '$' and '*'
func nmeaChecksum(body string) byte {
	var ck byte
	for i := 0; i < len(body); i++ {
		ck ^= body[i]
	}
	return ck
}

// eofOr maps mid-frame truncation to io.EOF so replay files that end in
// a partial frame terminate cleanly, and wraps everything else
func eofOr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return fmt.Errorf("stream read failed: %w", err)
}
