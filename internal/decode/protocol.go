// internal/decode/protocol.go
package decode

import "fmt"

// Protocol classifies a decoded frame by message family
type Protocol string

const (
	ProtocolUBX     Protocol = "UBX"
	ProtocolNMEA    Protocol = "NMEA"
	ProtocolUnknown Protocol = "UNKNOWN"
)

// Filter selects which protocols are routed to handlers. FilterAll
// additionally enables pass-through logging of unrecognized frames.
type Filter string

const (
	FilterUBX  Filter = "ubx"
	FilterNMEA Filter = "nmea"
	FilterAll  Filter = "all"
)

// ParseFilter parses a filter from its configuration string
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case FilterUBX, FilterNMEA, FilterAll:
		return Filter(s), nil
	default:
		return "", fmt.Errorf("invalid protocol filter: %q", s)
	}
}

// Accepts reports whether frames of the given protocol are routed to
// their protocol handler
func (f Filter) Accepts(p Protocol) bool {
	switch p {
	case ProtocolUBX:
		return f == FilterUBX || f == FilterAll
	case ProtocolNMEA:
		return f == FilterNMEA || f == FilterAll
	default:
		return false
	}
}

// PassThrough reports whether unrecognized frames are logged to the
// console sink instead of being dropped
func (f Filter) PassThrough() bool {
	return f == FilterAll
}
