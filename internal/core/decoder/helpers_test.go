package decoder

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	xdr "github.com/rasky/go-xdr/xdr2"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktt/internal/core"
)

var (
	clientMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	serverMAC = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	clientIP  = net.IP{10, 0, 0, 1}
	serverIP  = net.IP{10, 0, 0, 2}
	clientIP6 = net.ParseIP("2001:db8::1")
	serverIP6 = net.ParseIP("2001:db8::2")

	captureTime = time.Unix(1700000000, 0).UTC()
)

const (
	clientPort  = 800
	portmapPort = 111
	nfsPort     = 2049
)

// RPC message fixtures, marshalled with go-xdr.

type rpcCallHeader struct {
	XID        uint32
	MsgType    uint32
	RPCVers    uint32
	Prog       uint32
	Vers       uint32
	Proc       uint32
	CredFlavor uint32
	CredBody   []byte
	VerfFlavor uint32
	VerfBody   []byte
}

type rpcAcceptedHeader struct {
	XID        uint32
	MsgType    uint32
	ReplyStat  uint32
	VerfFlavor uint32
	VerfBody   []byte
	AcceptStat uint32
}

type authSysBody struct {
	Stamp   uint32
	Machine string
	UID     uint32
	GID     uint32
	GIDs    []uint32
}

type gssCredBody struct {
	Version uint32
	Proc    uint32
	Seq     uint32
	Service uint32
	Handle  []byte
}

func xdrEncode(t testing.TB, values ...interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range values {
		_, err := xdr.Marshal(&buf, v)
		require.NoError(t, err)
	}
	return buf.Bytes()
}

func u32(vs ...uint32) []byte {
	b := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	return b
}

func callMsg(t testing.TB, xid, prog, vers, proc uint32, flavor core.AuthFlavor, cred, body []byte) []byte {
	t.Helper()
	hdr := rpcCallHeader{
		XID:        xid,
		MsgType:    uint32(core.MsgCall),
		RPCVers:    2,
		Prog:       prog,
		Vers:       vers,
		Proc:       proc,
		CredFlavor: uint32(flavor),
		CredBody:   cred,
	}
	return append(xdrEncode(t, hdr), body...)
}

func replyMsg(t testing.TB, xid uint32, verf core.AuthFlavor, verfBody, body []byte) []byte {
	t.Helper()
	hdr := rpcAcceptedHeader{
		XID:        xid,
		MsgType:    uint32(core.MsgReply),
		ReplyStat:  uint32(core.MsgAccepted),
		VerfFlavor: uint32(verf),
		VerfBody:   verfBody,
		AcceptStat: uint32(core.Success),
	}
	return append(xdrEncode(t, hdr), body...)
}

func authSysCred(t testing.TB) []byte {
	return xdrEncode(t, authSysBody{Stamp: 7, Machine: "client", UID: 1000, GID: 100, GIDs: []uint32{100, 10}})
}

func gssCred(t testing.TB, proc core.GSSProc, seq uint32, svc core.GSSService) []byte {
	return xdrEncode(t, gssCredBody{
		Version: 1,
		Proc:    uint32(proc),
		Seq:     seq,
		Service: uint32(svc),
		Handle:  []byte{0xde, 0xad, 0xbe, 0xef},
	})
}

// Frame fixtures, serialised with gopacket.

func frameOf(lt core.LinkType, data []byte) core.RawFrame {
	return core.RawFrame{
		Data:       data,
		Timestamp:  captureTime,
		LinkType:   lt,
		CaptureLen: uint32(len(data)),
		OrigLen:    uint32(len(data)),
	}
}

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ethernet() *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: clientMAC, DstMAC: serverMAC, EthernetType: layers.EthernetTypeIPv4}
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Id: 0x1234, Flags: layers.IPv4DontFragment, Protocol: proto, SrcIP: clientIP, DstIP: serverIP}
}

// udpFrame builds an Ethernet/IPv4/UDP frame.
func udpFrame(t testing.TB, sport, dport uint16, payload []byte) core.RawFrame {
	t.Helper()
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return frameOf(core.LinkTypeEthernet, serialize(t, ethernet(), ip, udp, gopacket.Payload(payload)))
}

// udp6Frame builds a raw IPv6/UDP frame.
func udp6Frame(t testing.TB, sport, dport uint16, payload []byte) core.RawFrame {
	t.Helper()
	ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolUDP, SrcIP: clientIP6, DstIP: serverIP6}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return frameOf(core.LinkTypeIPv6, serialize(t, ip, udp, gopacket.Payload(payload)))
}

// tcpFrame builds an Ethernet/IPv4/TCP frame carrying one RPC record.
func tcpFrame(t testing.TB, sport, dport uint16, record []byte) core.RawFrame {
	t.Helper()
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		Seq:     1000,
		Ack:     2000,
		PSH:     true,
		ACK:     true,
		Window:  65535,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	payload := append(u32(0x80000000|uint32(len(record))), record...)
	return frameOf(core.LinkTypeEthernet, serialize(t, ethernet(), ip, tcp, gopacket.Payload(payload)))
}

func decodeOne(t testing.TB, s *Session, frame core.RawFrame) *core.Packet {
	t.Helper()
	pkt, err := s.Decode(frame)
	require.NoError(t, err)
	require.NotNil(t, pkt)
	return pkt
}

func layerNames(pkt *core.Packet) []string {
	var names []string
	for _, l := range pkt.Layers() {
		names = append(names, l.Name())
	}
	return names
}

type sliceSource struct {
	frames []core.RawFrame
	err    error
}

func (s *sliceSource) ReadFrame() (core.RawFrame, error) {
	if len(s.frames) == 0 {
		if s.err != nil {
			return core.RawFrame{}, s.err
		}
		return core.RawFrame{}, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}
