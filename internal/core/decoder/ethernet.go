package decoder

import (
	"fmt"

	"firestige.xyz/pktt/internal/core"
)

var (
	ethernetLayout = Layout{Block(6), Block(6), U16}
	vlanLayout     = Layout{U16, U16} // TCI, inner EtherType
	sllLayout      = Layout{U16, U16, U16, Block(8), U16}
)

// decodeLink selects the first decoder from the frame's link type.
func (p *pass) decodeLink(lt core.LinkType) error {
	switch lt {
	case core.LinkTypeEthernet:
		return p.decodeEthernet()
	case core.LinkTypeLinuxSLL:
		return p.decodeLinuxSLL()
	case core.LinkTypeIPv4:
		return p.decodeIPv4()
	case core.LinkTypeIPv6:
		return p.decodeIPv6()
	case core.LinkTypeRaw:
		return p.decodeRawIP()
	default:
		// Nothing to decode; the frame is still emitted.
		return p.diagnose("link", fmt.Errorf("%w: %s", core.ErrUnsupportedLink, lt))
	}
}

// decodeEthernet decodes an Ethernet II header, including stacked VLAN
// tags, and dispatches on the innermost EtherType.
func (p *pass) decodeEthernet() error {
	start := p.c.Offset()
	f, err := p.c.ReadFixed(ethernetLayout)
	if err != nil {
		return err
	}
	eth := &core.Ethernet{EtherType: uint16(f.Uint(2))}
	copy(eth.Dst[:], f.Bytes(0))
	copy(eth.Src[:], f.Bytes(1))

	for eth.EtherType == core.EtherTypeVLAN || eth.EtherType == core.EtherTypeQinQ {
		tag, err := p.c.ReadFixed(vlanLayout)
		if err != nil {
			p.c.Rewind(start)
			return err
		}
		eth.VLANs = append(eth.VLANs, uint16(tag.Uint(0))&0x0FFF)
		eth.EtherType = uint16(tag.Uint(1))
	}

	switch eth.EtherType {
	case core.EtherTypeIPv4:
		if err := p.add(eth); err != nil {
			return err
		}
		return p.decodeIPv4()
	case core.EtherTypeIPv6:
		if err := p.add(eth); err != nil {
			return err
		}
		return p.decodeIPv6()
	default:
		eth.Payload = p.c.Rest()
		return p.add(eth)
	}
}

// decodeLinuxSLL decodes the 16-byte Linux cooked capture header.
func (p *pass) decodeLinuxSLL() error {
	f, err := p.c.ReadFixed(sllLayout)
	if err != nil {
		return err
	}
	sll := &core.LinuxSLL{
		PacketType: uint16(f.Uint(0)),
		AddrType:   uint16(f.Uint(1)),
		AddrLen:    uint16(f.Uint(2)),
		Protocol:   uint16(f.Uint(4)),
	}
	copy(sll.Addr[:], f.Bytes(3))

	switch sll.Protocol {
	case core.EtherTypeIPv4:
		if err := p.add(sll); err != nil {
			return err
		}
		return p.decodeIPv4()
	case core.EtherTypeIPv6:
		if err := p.add(sll); err != nil {
			return err
		}
		return p.decodeIPv6()
	default:
		sll.Payload = p.c.Rest()
		return p.add(sll)
	}
}

// decodeRawIP picks the IP decoder from the version nibble.
func (p *pass) decodeRawIP() error {
	b, err := p.c.Peek(1)
	if err != nil {
		return err
	}
	switch b[0] >> 4 {
	case 4:
		return p.decodeIPv4()
	case 6:
		return p.decodeIPv6()
	default:
		return p.diagnose("link", fmt.Errorf("%w: raw ip version %d", core.ErrMalformed, b[0]>>4))
	}
}
