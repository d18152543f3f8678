package decoder

import (
	"fmt"
	"net/netip"

	"firestige.xyz/pktt/internal/core"
)

const (
	ipv4MinHeaderLen = 20
	ipv6HeaderLen    = 40

	ipv4FlagMF = 0x1
)

var (
	// ver/ihl, tos, total length, id, flags/fragment, ttl, protocol,
	// checksum, src, dst
	ipv4Layout = Layout{U8, U8, U16, U16, U16, U8, U8, U16, Block(4), Block(4)}

	// ver/class/flow, payload length, next header, hop limit, src, dst
	ipv6Layout = Layout{U32, U16, U8, U8, Block(16), Block(16)}
)

// decodeIPv4 decodes an IPv4 header with its options. Fragments are not
// reassembled: any fragment keeps its payload verbatim.
func (p *pass) decodeIPv4() error {
	start := p.c.Offset()
	f, err := p.c.ReadFixed(ipv4Layout)
	if err != nil {
		return err
	}
	verIHL := uint8(f.Uint(0))
	flagsFrag := uint16(f.Uint(4))
	ip := &core.IPv4{
		Version:     verIHL >> 4,
		IHL:         verIHL & 0x0F,
		TOS:         uint8(f.Uint(1)),
		TotalLength: uint16(f.Uint(2)),
		ID:          uint16(f.Uint(3)),
		Flags:       uint8(flagsFrag >> 13),
		FragOffset:  flagsFrag & 0x1FFF,
		TTL:         uint8(f.Uint(5)),
		Protocol:    uint8(f.Uint(6)),
		Checksum:    uint16(f.Uint(7)),
		Src:         netip.AddrFrom4([4]byte(f.Bytes(8))),
		Dst:         netip.AddrFrom4([4]byte(f.Bytes(9))),
	}

	hdrLen := int(ip.IHL) * 4
	if hdrLen < ipv4MinHeaderLen {
		p.c.Rewind(start)
		return fmt.Errorf("%w: ipv4 header length %d", core.ErrMalformed, hdrLen)
	}
	if hdrLen > ipv4MinHeaderLen {
		if ip.Options, err = p.c.Bytes(hdrLen - ipv4MinHeaderLen); err != nil {
			p.c.Rewind(start)
			return err
		}
	}
	p.limit(int(ip.TotalLength) - hdrLen)

	if ip.FragOffset != 0 || ip.Flags&ipv4FlagMF != 0 {
		ip.Payload = p.c.Rest()
		return p.add(ip)
	}
	return p.dispatchIP(ip, ip.Protocol, &ip.Payload)
}

// decodeIPv6 decodes the fixed 40-byte IPv6 header. Extension headers are
// not followed.
func (p *pass) decodeIPv6() error {
	f, err := p.c.ReadFixed(ipv6Layout)
	if err != nil {
		return err
	}
	word := uint32(f.Uint(0))
	ip := &core.IPv6{
		Version:       uint8(word >> 28),
		TrafficClass:  uint8(word >> 20),
		FlowLabel:     word & 0x000FFFFF,
		PayloadLength: uint16(f.Uint(1)),
		NextHeader:    uint8(f.Uint(2)),
		HopLimit:      uint8(f.Uint(3)),
		Src:           netip.AddrFrom16([16]byte(f.Bytes(4))),
		Dst:           netip.AddrFrom16([16]byte(f.Bytes(5))),
	}
	p.limit(int(ip.PayloadLength))
	return p.dispatchIP(ip, ip.NextHeader, &ip.Payload)
}

// dispatchIP registers the network layer and hands the rest of the
// datagram to the transport decoder. Other protocols end the chain with
// their bytes stored in payload.
func (p *pass) dispatchIP(ip core.Layer, proto uint8, payload *[]byte) error {
	switch proto {
	case core.ProtocolTCP:
		if err := p.add(ip); err != nil {
			return err
		}
		return p.decodeTCP()
	case core.ProtocolUDP:
		if err := p.add(ip); err != nil {
			return err
		}
		return p.decodeUDP()
	default:
		*payload = p.c.Rest()
		return p.add(ip)
	}
}
