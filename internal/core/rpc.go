package core

import (
	"strconv"
	"time"
)

// MsgType is the ONC RPC message direction.
type MsgType uint32

const (
	MsgCall  MsgType = 0
	MsgReply MsgType = 1
)

func (m MsgType) String() string {
	switch m {
	case MsgCall:
		return "call"
	case MsgReply:
		return "reply"
	default:
		return "msg_type(" + strconv.Itoa(int(m)) + ")"
	}
}

// AuthFlavor identifies the security mechanism of a credential or verifier.
type AuthFlavor uint32

const (
	AuthNone  AuthFlavor = 0
	AuthSys   AuthFlavor = 1
	AuthShort AuthFlavor = 2
	AuthDH    AuthFlavor = 3
	RPCSecGSS AuthFlavor = 6
)

var flavorNames = map[AuthFlavor]string{
	AuthNone:  "AUTH_NONE",
	AuthSys:   "AUTH_SYS",
	AuthShort: "AUTH_SHORT",
	AuthDH:    "AUTH_DH",
	RPCSecGSS: "RPCSEC_GSS",
}

func (f AuthFlavor) String() string {
	if name, ok := flavorNames[f]; ok {
		return name
	}
	return "flavor(" + strconv.Itoa(int(f)) + ")"
}

// ReplyStat is the top-level reply status.
type ReplyStat uint32

const (
	MsgAccepted ReplyStat = 0
	MsgDenied   ReplyStat = 1
)

func (r ReplyStat) String() string {
	switch r {
	case MsgAccepted:
		return "MSG_ACCEPTED"
	case MsgDenied:
		return "MSG_DENIED"
	default:
		return "reply_stat(" + strconv.Itoa(int(r)) + ")"
	}
}

// AcceptStat is the status of an accepted reply.
type AcceptStat uint32

const (
	Success      AcceptStat = 0
	ProgUnavail  AcceptStat = 1
	ProgMismatch AcceptStat = 2
	ProcUnavail  AcceptStat = 3
	GarbageArgs  AcceptStat = 4
	SystemErr    AcceptStat = 5
)

var acceptStatNames = []string{
	"SUCCESS", "PROG_UNAVAIL", "PROG_MISMATCH", "PROC_UNAVAIL", "GARBAGE_ARGS", "SYSTEM_ERR",
}

func (a AcceptStat) String() string {
	if int(a) < len(acceptStatNames) {
		return acceptStatNames[a]
	}
	return "accept_stat(" + strconv.Itoa(int(a)) + ")"
}

// RejectStat is the status of a denied reply.
type RejectStat uint32

const (
	RPCMismatch RejectStat = 0
	AuthError   RejectStat = 1
)

func (r RejectStat) String() string {
	switch r {
	case RPCMismatch:
		return "RPC_MISMATCH"
	case AuthError:
		return "AUTH_ERROR"
	default:
		return "reject_stat(" + strconv.Itoa(int(r)) + ")"
	}
}

// GSSProc is the RPCSEC_GSS control procedure carried in the credential.
type GSSProc uint32

const (
	GSSProcData     GSSProc = 0
	GSSInit         GSSProc = 1
	GSSContinueInit GSSProc = 2
	GSSDestroy      GSSProc = 3
	GSSBindChannel  GSSProc = 4
)

var gssProcNames = []string{
	"RPCSEC_GSS_DATA", "RPCSEC_GSS_INIT", "RPCSEC_GSS_CONTINUE_INIT",
	"RPCSEC_GSS_DESTROY", "RPCSEC_GSS_BIND_CHANNEL",
}

func (p GSSProc) String() string {
	if int(p) < len(gssProcNames) {
		return gssProcNames[p]
	}
	return "gss_proc(" + strconv.Itoa(int(p)) + ")"
}

// IsInit reports whether the procedure belongs to context establishment.
func (p GSSProc) IsInit() bool {
	return p == GSSInit || p == GSSContinueInit
}

// GSSService is the RPCSEC_GSS protection level.
type GSSService uint32

const (
	GSSSvcNone        GSSService = 1
	GSSSvcIntegrity   GSSService = 2
	GSSSvcPrivacy     GSSService = 3
	GSSSvcChannelProt GSSService = 4
)

var gssServiceNames = map[GSSService]string{
	GSSSvcNone:        "rpc_gss_svc_none",
	GSSSvcIntegrity:   "rpc_gss_svc_integrity",
	GSSSvcPrivacy:     "rpc_gss_svc_privacy",
	GSSSvcChannelProt: "rpc_gss_svc_channel_prot",
}

func (s GSSService) String() string {
	if name, ok := gssServiceNames[s]; ok {
		return name
	}
	return "gss_service(" + strconv.Itoa(int(s)) + ")"
}

// Well-known ONC RPC program numbers.
const (
	ProgramPortmap uint32 = 100000
	ProgramNFS     uint32 = 100003
	ProgramMount   uint32 = 100005
	ProgramNLM     uint32 = 100021
	ProgramNSM     uint32 = 100024
)

var programNames = map[uint32]string{
	ProgramPortmap: "PORTMAP",
	ProgramNFS:     "NFS",
	ProgramMount:   "MOUNT",
	ProgramNLM:     "NLM",
	ProgramNSM:     "NSM",
}

// ProgramName returns a printable name for an RPC program number.
func ProgramName(program uint32) string {
	if name, ok := programNames[program]; ok {
		return name
	}
	return "program(" + strconv.FormatUint(uint64(program), 10) + ")"
}

// CallContext is what a reply needs to know about its call. The correlator
// stores one per outstanding transaction id.
type CallContext struct {
	XID        uint32
	Transport  uint8 // ProtocolTCP or ProtocolUDP
	Program    uint32
	Version    uint32
	Procedure  uint32
	Flavor     AuthFlavor
	GSSProc    GSSProc    // valid when Flavor == RPCSecGSS
	GSSService GSSService // valid when Flavor == RPCSecGSS
	Timestamp  time.Time
}

// GSSIntegrity reports whether the call uses RPCSEC_GSS DATA with the
// integrity service, i.e. whether a checksum follows the program payload.
func (c *CallContext) GSSIntegrity() bool {
	return c.Flavor == RPCSecGSS && c.GSSProc == GSSProcData && c.GSSService == GSSSvcIntegrity
}
