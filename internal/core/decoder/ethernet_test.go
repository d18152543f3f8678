package decoder

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktt/internal/core"
)

func TestEthernetHeader(t *testing.T) {
	pkt := decodeOne(t, NewSession(), udpFrame(t, clientPort, portmapPort, []byte("data")))

	eth, ok := core.LayerOf[*core.Ethernet](pkt)
	require.True(t, ok)
	assert.Equal(t, [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, eth.Dst)
	assert.Equal(t, [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, eth.Src)
	assert.Equal(t, core.EtherTypeIPv4, eth.EtherType)
	assert.Empty(t, eth.VLANs)
	assert.Nil(t, eth.Payload)
}

func TestEthernetVLANTags(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: clientMAC, DstMAC: serverMAC, EthernetType: layers.EthernetTypeQinQ}
	outer := &layers.Dot1Q{VLANIdentifier: 200, Type: layers.EthernetTypeDot1Q}
	inner := &layers.Dot1Q{VLANIdentifier: 100, Priority: 3, Type: layers.EthernetTypeIPv4}
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: clientPort, DstPort: portmapPort}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	data := serialize(t, eth, outer, inner, ip, udp, gopacket.Payload("q"))

	pkt := decodeOne(t, NewSession(), frameOf(core.LinkTypeEthernet, data))
	assert.Equal(t, []string{"ethernet", "ipv4", "udp"}, layerNames(pkt))

	got, _ := core.LayerOf[*core.Ethernet](pkt)
	assert.Equal(t, []uint16{200, 100}, got.VLANs)
	assert.Equal(t, core.EtherTypeIPv4, got.EtherType)
}

func TestEthernetTruncatedVLAN(t *testing.T) {
	data := serialize(t, &layers.Ethernet{SrcMAC: clientMAC, DstMAC: serverMAC, EthernetType: layers.EthernetTypeDot1Q})

	pkt, err := NewSession().Decode(frameOf(core.LinkTypeEthernet, data[:16]))
	assert.ErrorIs(t, err, core.ErrTruncated)
	assert.Equal(t, 0, pkt.Len())
}

func TestEthernetNonIPKeepsPayload(t *testing.T) {
	eth := &layers.Ethernet{SrcMAC: clientMAC, DstMAC: serverMAC, EthernetType: layers.EthernetTypeARP}
	data := serialize(t, eth, gopacket.Payload("arp"))

	pkt := decodeOne(t, NewSession(), frameOf(core.LinkTypeEthernet, data))
	assert.Equal(t, []string{"ethernet"}, layerNames(pkt))

	got, _ := core.LayerOf[*core.Ethernet](pkt)
	assert.Equal(t, uint16(layers.EthernetTypeARP), got.EtherType)
	assert.Equal(t, data[14:], got.Payload)
}

func TestEthernetTooShort(t *testing.T) {
	pkt, err := NewSession().Decode(frameOf(core.LinkTypeEthernet, make([]byte, 10)))
	assert.ErrorIs(t, err, core.ErrTruncated)
	assert.Equal(t, 0, pkt.Len())
}

func TestLinuxSLL(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: clientPort, DstPort: portmapPort}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	sll := []byte{
		0x00, 0x00, // packet type: to us
		0x00, 0x01, // ARPHRD_ETHER
		0x00, 0x06, // address length
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x00, 0x00,
		0x08, 0x00, // IPv4
	}
	data := append(sll, serialize(t, ip, udp, gopacket.Payload("sll"))...)

	pkt := decodeOne(t, NewSession(), frameOf(core.LinkTypeLinuxSLL, data))
	assert.Equal(t, []string{"linux_sll", "ipv4", "udp"}, layerNames(pkt))

	got, _ := core.LayerOf[*core.LinuxSLL](pkt)
	assert.Equal(t, uint16(1), got.AddrType)
	assert.Equal(t, uint16(6), got.AddrLen)
	assert.Equal(t, [8]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, got.Addr)
	assert.Equal(t, core.EtherTypeIPv4, got.Protocol)
}

func TestUnsupportedLinkType(t *testing.T) {
	pkt, err := NewSession().Decode(frameOf(core.LinkType(147), []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, 0, pkt.Len())
	require.Len(t, pkt.Diagnostics, 1)
	assert.Equal(t, "link", pkt.Diagnostics[0].Layer)
	assert.ErrorIs(t, pkt.Diagnostics[0].Err, core.ErrUnsupportedLink)
}
