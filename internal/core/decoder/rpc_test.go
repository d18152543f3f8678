package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktt/internal/core"
)

func TestCallReplyCorrelation(t *testing.T) {
	s := NewSession()
	args := []byte{0, 0, 0, 8, 1, 2, 3, 4, 5, 6, 7, 8}
	call := callMsg(t, 0xCAFE, core.ProgramNFS, 3, 1, core.AuthSys, authSysCred(t), args)

	callPkt := decodeOne(t, s, udpFrame(t, clientPort, nfsPort, call))
	assert.Equal(t, []string{"ethernet", "ipv4", "udp", "rpc_call"}, layerNames(callPkt))
	assert.Equal(t, 1, s.Pending())

	rc, ok := core.LayerOf[*core.RPCCall](callPkt)
	require.True(t, ok)
	assert.Equal(t, uint32(0xCAFE), rc.XID)
	assert.Equal(t, uint32(2), rc.RPCVersion)
	assert.Equal(t, core.ProgramNFS, rc.Program)
	assert.Equal(t, uint32(3), rc.Version)
	assert.Equal(t, uint32(1), rc.Procedure)
	assert.Equal(t, core.ProtocolUDP, rc.Transport)
	assert.Nil(t, rc.Fragment)
	assert.Equal(t, args, rc.Payload)

	require.NotNil(t, rc.Credential.Sys)
	assert.Equal(t, "client", rc.Credential.Sys.Machine)
	assert.Equal(t, uint32(1000), rc.Credential.Sys.UID)
	assert.Equal(t, uint32(100), rc.Credential.Sys.GID)
	assert.Equal(t, []uint32{100, 10}, rc.Credential.Sys.GIDs)
	assert.Equal(t, core.AuthNone, rc.Verifier.Flavor)

	results := []byte{0, 0, 0, 0}
	replyPkt := decodeOne(t, s, udpFrame(t, nfsPort, clientPort, replyMsg(t, 0xCAFE, core.AuthNone, nil, results)))
	assert.Equal(t, 0, s.Pending())

	rr, ok := core.LayerOf[*core.RPCReply](replyPkt)
	require.True(t, ok)
	require.True(t, rr.Matched())
	assert.True(t, rr.Succeeded())
	assert.Equal(t, core.ProgramNFS, rr.Call.Program)
	assert.Equal(t, uint32(1), rr.Call.Procedure)
	assert.Equal(t, core.AuthSys, rr.Call.Flavor)
	assert.Equal(t, captureTime, rr.Call.Timestamp)
	assert.Equal(t, results, rr.Payload)
}

func TestReplyWithoutCall(t *testing.T) {
	s := NewSession()
	body := []byte{0, 0, 0, 1}

	pkt := decodeOne(t, s, udpFrame(t, nfsPort, clientPort, replyMsg(t, 0x1234, core.AuthNone, nil, body)))
	assert.Equal(t, []string{"ethernet", "ipv4", "udp", "rpc_reply"}, layerNames(pkt))

	rr, _ := core.LayerOf[*core.RPCReply](pkt)
	assert.False(t, rr.Matched())
	assert.Equal(t, core.MsgAccepted, rr.ReplyStat)
	assert.Equal(t, core.Success, rr.AcceptStat)
	require.NotNil(t, rr.Verifier)
	assert.Equal(t, core.AuthNone, rr.Verifier.Flavor)
	assert.Equal(t, body, rr.Payload)
	assert.Equal(t, "false", pkt.Labels()[core.LabelRPCMatched])
}

func TestReplyIsMatchedOnlyOnce(t *testing.T) {
	s := NewSession()
	decodeOne(t, s, udpFrame(t, clientPort, nfsPort, callMsg(t, 9, core.ProgramNFS, 3, 0, core.AuthNone, nil, nil)))

	reply := udpFrame(t, nfsPort, clientPort, replyMsg(t, 9, core.AuthNone, nil, nil))
	first, _ := core.LayerOf[*core.RPCReply](decodeOne(t, s, reply))
	second, _ := core.LayerOf[*core.RPCReply](decodeOne(t, s, reply))
	assert.True(t, first.Matched())
	assert.False(t, second.Matched())
}

func TestRecycledXIDOverwritesCall(t *testing.T) {
	s := NewSession()
	decodeOne(t, s, udpFrame(t, clientPort, nfsPort, callMsg(t, 7, core.ProgramNFS, 3, 1, core.AuthNone, nil, nil)))
	decodeOne(t, s, udpFrame(t, clientPort, nfsPort, callMsg(t, 7, core.ProgramMount, 3, 5, core.AuthNone, nil, nil)))
	assert.Equal(t, 1, s.Pending())

	rr, _ := core.LayerOf[*core.RPCReply](decodeOne(t, s, udpFrame(t, nfsPort, clientPort, replyMsg(t, 7, core.AuthNone, nil, nil))))
	require.True(t, rr.Matched())
	assert.Equal(t, core.ProgramMount, rr.Call.Program)
	assert.Equal(t, uint32(5), rr.Call.Procedure)
}

func TestTruncatedCallDoesNotPoisonSession(t *testing.T) {
	s := NewSession()
	decodeOne(t, s, udpFrame(t, clientPort, nfsPort, callMsg(t, 1, core.ProgramNFS, 3, 1, core.AuthSys, authSysCred(t), nil)))

	// Header recognisable as RPC, credential cut short.
	broken := callMsg(t, 2, core.ProgramNFS, 3, 1, core.AuthSys, authSysCred(t), nil)[:30]
	pkt, err := s.Decode(udpFrame(t, clientPort, nfsPort, broken))
	assert.ErrorIs(t, err, core.ErrTruncated)
	assert.Equal(t, []string{"ethernet", "ipv4", "udp"}, layerNames(pkt))
	assert.Equal(t, 1, s.Pending())

	rr, _ := core.LayerOf[*core.RPCReply](decodeOne(t, s, udpFrame(t, nfsPort, clientPort, replyMsg(t, 1, core.AuthNone, nil, nil))))
	assert.True(t, rr.Matched())
	assert.Equal(t, 0, s.Pending())
}

func TestDeniedReplies(t *testing.T) {
	tests := []struct {
		name   string
		msg    []byte
		reject core.RejectStat
		lo, hi uint32
		auth   uint32
	}{
		{
			name:   "rpc mismatch",
			msg:    u32(5, 1, uint32(core.MsgDenied), uint32(core.RPCMismatch), 2, 2),
			reject: core.RPCMismatch,
			lo:     2,
			hi:     2,
		},
		{
			name:   "auth error",
			msg:    u32(5, 1, uint32(core.MsgDenied), uint32(core.AuthError), 5),
			reject: core.AuthError,
			auth:   5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession()
			decodeOne(t, s, udpFrame(t, clientPort, nfsPort, callMsg(t, 5, core.ProgramNFS, 3, 1, core.AuthNone, nil, nil)))

			pkt := decodeOne(t, s, udpFrame(t, nfsPort, clientPort, tt.msg))
			rr, ok := core.LayerOf[*core.RPCReply](pkt)
			require.True(t, ok)
			assert.Equal(t, core.MsgDenied, rr.ReplyStat)
			assert.Equal(t, tt.reject, rr.RejectStat)
			assert.Equal(t, tt.lo, rr.MismatchLo)
			assert.Equal(t, tt.hi, rr.MismatchHi)
			assert.Equal(t, tt.auth, rr.AuthStat)
			assert.Nil(t, rr.Verifier)
			assert.True(t, rr.Matched())
			assert.False(t, rr.Succeeded())
			assert.Equal(t, tt.reject.String(), pkt.Labels()[core.LabelRPCStatus])
		})
	}
}

func TestProgMismatchReply(t *testing.T) {
	msg := u32(8, 1, uint32(core.MsgAccepted), uint32(core.AuthNone), 0, uint32(core.ProgMismatch), 2, 4)
	pkt := decodeOne(t, NewSession(), udpFrame(t, nfsPort, clientPort, msg))

	rr, _ := core.LayerOf[*core.RPCReply](pkt)
	assert.Equal(t, core.ProgMismatch, rr.AcceptStat)
	assert.Equal(t, uint32(2), rr.MismatchLo)
	assert.Equal(t, uint32(4), rr.MismatchHi)
}

func TestMatchedFailedReplyKeepsCallContext(t *testing.T) {
	s := NewSession()
	decodeOne(t, s, udpFrame(t, clientPort, nfsPort, callMsg(t, 0x44, core.ProgramNFS, 3, 1, core.AuthNone, nil, nil)))

	msg := u32(0x44, 1, uint32(core.MsgAccepted), uint32(core.AuthNone), 0, uint32(core.ProgMismatch), 2, 4)
	pkt := decodeOne(t, s, udpFrame(t, nfsPort, clientPort, msg))

	rr, _ := core.LayerOf[*core.RPCReply](pkt)
	require.True(t, rr.Matched())
	assert.False(t, rr.Succeeded())
	assert.Equal(t, core.ProgramNFS, rr.Call.Program)
	assert.Equal(t, "true", pkt.Labels()[core.LabelRPCMatched])
	assert.Zero(t, s.Pending())
}

func TestOversizedCredentialIsMalformed(t *testing.T) {
	msg := callMsg(t, 3, core.ProgramNFS, 3, 1, core.AuthSys, make([]byte, 404), nil)

	pkt, err := NewSession().Decode(udpFrame(t, clientPort, nfsPort, msg))
	assert.ErrorIs(t, err, core.ErrMalformed)
	assert.False(t, pkt.Has(core.RoleRPC))
}

func TestUnparsableAuthSysIsDiagnostic(t *testing.T) {
	msg := callMsg(t, 3, core.ProgramNFS, 3, 1, core.AuthSys, []byte{0, 0, 0, 1}, nil)

	pkt := decodeOne(t, NewSession(), udpFrame(t, clientPort, nfsPort, msg))
	rc, ok := core.LayerOf[*core.RPCCall](pkt)
	require.True(t, ok)
	assert.Nil(t, rc.Credential.Sys)
	assert.Equal(t, []byte{0, 0, 0, 1}, rc.Credential.Body)
	require.Len(t, pkt.Diagnostics, 1)
	assert.Equal(t, "auth_sys", pkt.Diagnostics[0].Layer)
}

func TestSessionsDoNotShareCorrelator(t *testing.T) {
	a, b := NewSession(), NewSession()
	decodeOne(t, a, udpFrame(t, clientPort, nfsPort, callMsg(t, 11, core.ProgramNFS, 3, 1, core.AuthNone, nil, nil)))

	rr, _ := core.LayerOf[*core.RPCReply](decodeOne(t, b, udpFrame(t, nfsPort, clientPort, replyMsg(t, 11, core.AuthNone, nil, nil))))
	assert.False(t, rr.Matched())
	assert.Equal(t, 1, a.Pending())
}

func TestRPCOverIPv6(t *testing.T) {
	s := NewSession()
	pkt := decodeOne(t, s, udp6Frame(t, clientPort, portmapPort, callMsg(t, 77, core.ProgramPortmap, 2, core.PortmapNull, core.AuthNone, nil, nil)))
	assert.Equal(t, []string{"ipv6", "udp", "rpc_call", "portmap"}, layerNames(pkt))
}

func TestCorrelator(t *testing.T) {
	c := NewCorrelator()
	c.Insert(core.CallContext{XID: 1, Program: core.ProgramNFS})
	c.Insert(core.CallContext{XID: 2, Program: core.ProgramMount})
	assert.Equal(t, 2, c.Len())

	ctx, ok := c.Peek(1)
	require.True(t, ok)
	assert.Equal(t, core.ProgramNFS, ctx.Program)
	assert.Equal(t, 2, c.Len())

	ctx, ok = c.Take(2)
	require.True(t, ok)
	assert.Equal(t, core.ProgramMount, ctx.Program)
	_, ok = c.Take(2)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}
