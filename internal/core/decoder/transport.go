package decoder

import (
	"fmt"

	"firestige.xyz/pktt/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpMinHeaderLen = 20
	recordMarkLen   = 4

	recordMarkLast = 0x80000000
)

var (
	udpLayout = Layout{U16, U16, U16, U16}

	// ports, seq, ack, offset/flags, window, checksum, urgent pointer
	tcpLayout = Layout{U16, U16, U32, U32, U16, U16, U16, U16}
)

// decodeUDP decodes a UDP header and always offers the datagram to the
// RPC decoder.
func (p *pass) decodeUDP() error {
	f, err := p.c.ReadFixed(udpLayout)
	if err != nil {
		return err
	}
	udp := &core.UDP{
		SrcPort:  uint16(f.Uint(0)),
		DstPort:  uint16(f.Uint(1)),
		Length:   uint16(f.Uint(2)),
		Checksum: uint16(f.Uint(3)),
	}
	p.limit(int(udp.Length) - udpHeaderLen)

	if !p.looksLikeRPC(0) {
		udp.Payload = p.c.Rest()
		return p.add(udp)
	}
	if err := p.add(udp); err != nil {
		return err
	}
	return p.decodeRPC(core.ProtocolUDP, nil)
}

// decodeTCP decodes a TCP header. A segment carries RPC when it starts
// with a record marker followed by an RPC message header. Segments are
// not reassembled, so continuation segments keep their bytes verbatim.
func (p *pass) decodeTCP() error {
	start := p.c.Offset()
	f, err := p.c.ReadFixed(tcpLayout)
	if err != nil {
		return err
	}
	offFlags := uint16(f.Uint(4))
	tcp := &core.TCP{
		SrcPort:    uint16(f.Uint(0)),
		DstPort:    uint16(f.Uint(1)),
		Seq:        uint32(f.Uint(2)),
		Ack:        uint32(f.Uint(3)),
		DataOffset: uint8(offFlags >> 12),
		Flags:      core.TCPFlags(offFlags & 0x01FF),
		Window:     uint16(f.Uint(5)),
		Checksum:   uint16(f.Uint(6)),
		Urgent:     uint16(f.Uint(7)),
	}
	hdrLen := int(tcp.DataOffset) * 4
	if hdrLen < tcpMinHeaderLen {
		p.c.Rewind(start)
		return fmt.Errorf("%w: tcp data offset %d", core.ErrMalformed, tcp.DataOffset)
	}
	if hdrLen > tcpMinHeaderLen {
		if tcp.Options, err = p.c.Bytes(hdrLen - tcpMinHeaderLen); err != nil {
			p.c.Rewind(start)
			return err
		}
	}

	if !p.looksLikeRPC(recordMarkLen) {
		tcp.Payload = p.c.Rest()
		return p.add(tcp)
	}
	if err := p.add(tcp); err != nil {
		return err
	}
	word, err := p.c.Uint32()
	if err != nil {
		return err
	}
	mark := &core.RecordMark{Last: word&recordMarkLast != 0, Size: word &^ recordMarkLast}
	p.limit(int(mark.Size))
	return p.decodeRPC(core.ProtocolTCP, mark)
}
