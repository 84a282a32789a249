// internal/decode/message.go
package decode

import (
	"fmt"
	"strings"
)

// Message is the parsed form of one decoded frame
type Message interface {
	Protocol() Protocol
	String() string
}

// Frame is the unit produced by one decode step: the raw bytes of one
// complete protocol message plus its parsed form. Frames are transient;
// ownership passes to whichever handler or sink consumes them.
type Frame struct {
	Raw []byte
	Msg Message
}

// Protocol returns the protocol tag of the parsed message
func (f *Frame) Protocol() Protocol {
	if f.Msg == nil {
		return ProtocolUnknown
	}
	return f.Msg.Protocol()
}

// UBXMessage is one u-blox proprietary binary message
type UBXMessage struct {
	Class   byte
	ID      byte
	Payload []byte
}

func (m *UBXMessage) Protocol() Protocol { return ProtocolUBX }

func (m *UBXMessage) String() string {
	return fmt.Sprintf("UBX %02X-%02X (%d bytes)", m.Class, m.ID, len(m.Payload))
}

// NMEASentence is one NMEA 0183 sentence. Talker is "P" for proprietary
// sentences, Type carries the remainder of the address field.
type NMEASentence struct {
	Talker string
	Type   string
	Fields []string
}

func (m *NMEASentence) Protocol() Protocol { return ProtocolNMEA }

func (m *NMEASentence) String() string {
	return fmt.Sprintf("NMEA %s%s (%d fields)", m.Talker, m.Type, len(m.Fields))
}

// Field returns field i or "" when the sentence is shorter
func (m *NMEASentence) Field(i int) string {
	if i < 0 || i >= len(m.Fields) {
		return ""
	}
	return m.Fields[i]
}

// RawChunk is a run of bytes that matched no known protocol header
type RawChunk struct {
	Data []byte
}

func (m *RawChunk) Protocol() Protocol { return ProtocolUnknown }

func (m *RawChunk) String() string {
	return fmt.Sprintf("unknown protocol (%d bytes)", len(m.Data))
}

// parseNMEAAddress splits an NMEA address field ("GPGGA", "PSTMSRR")
// into talker and sentence type
func parseNMEAAddress(addr string) (talker, typ string) {
	if strings.HasPrefix(addr, "P") {
		return "P", addr[1:]
	}
	if len(addr) > 2 {
		return addr[:2], addr[2:]
	}
	return addr, ""
}
