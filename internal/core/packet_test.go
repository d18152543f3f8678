package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPacket() *Packet {
	return NewPacket(7, RawFrame{
		Data:       make([]byte, 60),
		Timestamp:  time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC),
		LinkType:   LinkTypeEthernet,
		CaptureLen: 60,
		OrigLen:    1514,
	})
}

func TestNewPacketCopiesFrameMetadata(t *testing.T) {
	p := newTestPacket()
	assert.Equal(t, 7, p.Index)
	assert.Equal(t, LinkTypeEthernet, p.LinkType)
	assert.Equal(t, uint32(60), p.CaptureLen)
	assert.Equal(t, uint32(1514), p.OrigLen)
	assert.Zero(t, p.Len())
	assert.False(t, p.Sealed())
}

func TestPacketAddKeepsDecodeOrder(t *testing.T) {
	p := newTestPacket()
	require.NoError(t, p.Add(&Ethernet{EtherType: EtherTypeIPv4}))
	require.NoError(t, p.Add(&IPv4{Version: 4, Protocol: ProtocolUDP}))
	require.NoError(t, p.Add(&UDP{SrcPort: 800, DstPort: 111}))
	require.NoError(t, p.Add(&RPCCall{XID: 1}))

	var names []string
	for _, l := range p.Layers() {
		names = append(names, l.Name())
	}
	assert.Equal(t, []string{"ethernet", "ipv4", "udp", "rpc_call"}, names)
	assert.Equal(t, 4, p.Len())
	assert.True(t, p.Has(RoleRPC))
	assert.False(t, p.Has(RoleApplication))
	assert.Nil(t, p.Layer(numRoles))
}

func TestPacketRejectsDuplicateRole(t *testing.T) {
	p := newTestPacket()
	require.NoError(t, p.Add(&IPv4{}))

	err := p.Add(&IPv6{})
	assert.ErrorIs(t, err, ErrDuplicateLayer)
	assert.Contains(t, err.Error(), "network holds ipv4, got ipv6")
	assert.Equal(t, 1, p.Len())
	assert.IsType(t, &IPv4{}, p.Layer(RoleNetwork))
}

func TestSealedPacketIsReadOnly(t *testing.T) {
	p := newTestPacket()
	require.NoError(t, p.Add(&Ethernet{}))
	p.Seal()

	assert.True(t, p.Sealed())
	assert.ErrorIs(t, p.Add(&IPv4{}), ErrPacketSealed)
	assert.ErrorIs(t, p.AddDiagnostic("gss_data", ErrMalformed), ErrPacketSealed)
	assert.Equal(t, 1, p.Len())
	assert.Empty(t, p.Diagnostics)
}

func TestLayerOf(t *testing.T) {
	p := newTestPacket()
	require.NoError(t, p.Add(&UDP{SrcPort: 111}))
	require.NoError(t, p.Add(&RPCReply{XID: 9}))

	udp, ok := LayerOf[*UDP](p)
	require.True(t, ok)
	assert.Equal(t, uint16(111), udp.SrcPort)

	reply, ok := LayerOf[*RPCReply](p)
	require.True(t, ok)
	assert.Equal(t, uint32(9), reply.XID)

	call, ok := LayerOf[*RPCCall](p)
	assert.False(t, ok)
	assert.Nil(t, call)
}

func TestPacketString(t *testing.T) {
	p := newTestPacket()
	require.NoError(t, p.Add(&Ethernet{}))
	require.NoError(t, p.Add(&IPv4{}))
	assert.Equal(t, "#7 12:30:45.123456 ethernet ipv4", p.String())

	p.Err = ErrTruncated
	assert.Equal(t, "#7 12:30:45.123456 ethernet ipv4 [pktt: truncated]", p.String())
}

func TestDiagnostics(t *testing.T) {
	p := newTestPacket()
	require.NoError(t, p.AddDiagnostic("gss_checksum", ErrTruncated))
	require.Len(t, p.Diagnostics, 1)
	assert.Equal(t, "gss_checksum: pktt: truncated", p.Diagnostics[0].String())
}

func TestRoleAndLinkTypeNames(t *testing.T) {
	assert.Equal(t, "security", RoleSecurity.String())
	assert.Equal(t, "role(42)", Role(42).String())
	assert.Equal(t, "linux_sll", LinkTypeLinuxSLL.String())
	assert.Equal(t, "linktype(147)", LinkType(147).String())
}

func TestRawFrameTruncated(t *testing.T) {
	assert.True(t, RawFrame{CaptureLen: 96, OrigLen: 1500}.Truncated())
	assert.False(t, RawFrame{CaptureLen: 60, OrigLen: 60}.Truncated())
}

func TestCallContextGSSIntegrity(t *testing.T) {
	call := &RPCCall{
		XID:       3,
		Transport: ProtocolTCP,
		Program:   ProgramNFS,
		Version:   4,
		Credential: Credential{
			Flavor: RPCSecGSS,
			GSS:    &GSSCredential{Version: 1, Procedure: GSSProcData, Service: GSSSvcIntegrity},
		},
	}
	ctx := call.Context()
	assert.True(t, ctx.GSSIntegrity())
	assert.Equal(t, ProtocolTCP, ctx.Transport)

	call.Credential.GSS.Service = GSSSvcPrivacy
	ctx = call.Context()
	assert.False(t, ctx.GSSIntegrity())

	plain := (&RPCCall{Credential: Credential{Flavor: AuthSys}}).Context()
	assert.False(t, plain.GSSIntegrity())
}
