// Package core defines core data structures with zero external dependencies.
package core

import (
	"strconv"
	"time"
)

// LinkType is the capture link-layer type tag (pcap LINKTYPE_* values).
type LinkType uint32

const (
	LinkTypeNull     LinkType = 0
	LinkTypeEthernet LinkType = 1
	LinkTypeRaw      LinkType = 101
	LinkTypeLinuxSLL LinkType = 113
	LinkTypeIPv4     LinkType = 228
	LinkTypeIPv6     LinkType = 229
)

func (l LinkType) String() string {
	switch l {
	case LinkTypeNull:
		return "null"
	case LinkTypeEthernet:
		return "ethernet"
	case LinkTypeRaw:
		return "raw"
	case LinkTypeLinuxSLL:
		return "linux_sll"
	case LinkTypeIPv4:
		return "ipv4"
	case LinkTypeIPv6:
		return "ipv6"
	default:
		return "linktype(" + strconv.Itoa(int(l)) + ")"
	}
}

// RawFrame is one captured link-layer frame. Data is owned by a single
// decode pass and must not be modified.
type RawFrame struct {
	Data       []byte    // Raw frame bytes
	Timestamp  time.Time // Original on-wire capture timestamp
	LinkType   LinkType  // Selects the first decoder
	CaptureLen uint32    // Captured length
	OrigLen    uint32    // Original length on the wire
}

// Truncated reports whether the capture snapped the frame short.
func (f RawFrame) Truncated() bool {
	return f.OrigLen > f.CaptureLen
}

// IP protocol numbers used by the dispatch chain.
const (
	ProtocolTCP uint8 = 6
	ProtocolUDP uint8 = 17
)

// EtherType values.
const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeIPv6 uint16 = 0x86DD
	EtherTypeVLAN uint16 = 0x8100
	EtherTypeQinQ uint16 = 0x88A8
)
