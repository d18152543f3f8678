package decoder

import (
	"fmt"

	"firestige.xyz/pktt/internal/core"
)

// The encoders write the fixed headers back with the same layouts the
// decoders read, so a decoded header re-encodes to its original bytes.
// Payloads are not included.

// EncodeIPv6 encodes the fixed 40-byte IPv6 header.
func EncodeIPv6(ip *core.IPv6) ([]byte, error) {
	if ip.FlowLabel > 0x000FFFFF {
		return nil, fmt.Errorf("%w: flow label 0x%x exceeds 20 bits", core.ErrMalformed, ip.FlowLabel)
	}
	word := uint32(ip.Version)<<28 | uint32(ip.TrafficClass)<<20 | ip.FlowLabel
	src, dst := ip.Src.As16(), ip.Dst.As16()
	return ipv6Layout.Pack(word, ip.PayloadLength, ip.NextHeader, ip.HopLimit, src[:], dst[:])
}

// EncodeIPv4 encodes an IPv4 header including its options.
func EncodeIPv4(ip *core.IPv4) ([]byte, error) {
	if int(ip.IHL)*4 != ipv4MinHeaderLen+len(ip.Options) {
		return nil, fmt.Errorf("%w: ihl %d does not match %d option bytes", core.ErrMalformed, ip.IHL, len(ip.Options))
	}
	src, dst := ip.Src.As4(), ip.Dst.As4()
	b, err := ipv4Layout.Pack(
		ip.Version<<4|ip.IHL, ip.TOS, ip.TotalLength, ip.ID,
		uint16(ip.Flags)<<13|ip.FragOffset, ip.TTL, ip.Protocol, ip.Checksum,
		src[:], dst[:],
	)
	if err != nil {
		return nil, err
	}
	return append(b, ip.Options...), nil
}

// EncodeUDP encodes the 8-byte UDP header.
func EncodeUDP(udp *core.UDP) ([]byte, error) {
	return udpLayout.Pack(udp.SrcPort, udp.DstPort, udp.Length, udp.Checksum)
}

// EncodeTCP encodes a TCP header including its options.
func EncodeTCP(tcp *core.TCP) ([]byte, error) {
	if int(tcp.DataOffset)*4 != tcpMinHeaderLen+len(tcp.Options) {
		return nil, fmt.Errorf("%w: data offset %d does not match %d option bytes", core.ErrMalformed, tcp.DataOffset, len(tcp.Options))
	}
	b, err := tcpLayout.Pack(
		tcp.SrcPort, tcp.DstPort, tcp.Seq, tcp.Ack,
		uint16(tcp.DataOffset)<<12|uint16(tcp.Flags), tcp.Window, tcp.Checksum, tcp.Urgent,
	)
	if err != nil {
		return nil, err
	}
	return append(b, tcp.Options...), nil
}
