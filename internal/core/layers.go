package core

import (
	"net/netip"
	"strconv"
)

// Role is the position a layer occupies in a packet.
type Role uint8

const (
	RoleLink Role = iota
	RoleNetwork
	RoleTransport
	RoleRPC
	RoleSecurity // GSS data preceding the program payload
	RoleApplication
	RoleChecksum // GSS checksum following the program payload
	numRoles
)

var roleNames = [numRoles]string{"link", "network", "transport", "rpc", "security", "application", "checksum"}

func (r Role) String() string {
	if r < numRoles {
		return roleNames[r]
	}
	return "role(" + strconv.Itoa(int(r)) + ")"
}

// Layer is one protocol's decoded representation within a Packet. The set
// of implementations is closed; add a protocol by adding a type here and a
// case to the dispatch switch that produces it.
type Layer interface {
	Role() Role
	Name() string
	layer()
}

// Ethernet is an Ethernet II header with optional 802.1Q/QinQ tags.
type Ethernet struct {
	Dst       [6]byte
	Src       [6]byte
	EtherType uint16
	VLANs     []uint16
	Payload   []byte // Set when EtherType is not decoded further
}

// LinuxSLL is the Linux "cooked" capture header.
type LinuxSLL struct {
	PacketType uint16
	AddrType   uint16
	AddrLen    uint16
	Addr       [8]byte
	Protocol   uint16
	Payload    []byte
}

// IPv4 is an IPv4 header.
type IPv4 struct {
	Version     uint8
	IHL         uint8 // 32-bit words
	TOS         uint8
	TotalLength uint16
	ID          uint16
	Flags       uint8 // 3 bits
	FragOffset  uint16
	TTL         uint8
	Protocol    uint8
	Checksum    uint16
	Src         netip.Addr
	Dst         netip.Addr
	Options     []byte
	Payload     []byte // Set when Protocol is not decoded further
}

// IPv6 is the fixed IPv6 header. Extension headers are not decoded; they
// end up in Payload like any other unsupported next header.
type IPv6 struct {
	Version       uint8
	TrafficClass  uint8
	FlowLabel     uint32
	PayloadLength uint16
	NextHeader    uint8
	HopLimit      uint8
	Src           netip.Addr
	Dst           netip.Addr
	Payload       []byte
}

// TCPFlags holds the nine TCP control bits.
type TCPFlags uint16

const (
	TCPFlagFIN TCPFlags = 1 << iota
	TCPFlagSYN
	TCPFlagRST
	TCPFlagPSH
	TCPFlagACK
	TCPFlagURG
	TCPFlagECE
	TCPFlagCWR
	TCPFlagNS
)

var tcpFlagNames = []string{"FIN", "SYN", "RST", "PSH", "ACK", "URG", "ECE", "CWR", "NS"}

// Has reports whether all bits in f are set.
func (t TCPFlags) Has(f TCPFlags) bool { return t&f == f }

func (t TCPFlags) String() string {
	out := ""
	for i, name := range tcpFlagNames {
		if t&(1<<i) != 0 {
			if out != "" {
				out += ","
			}
			out += name
		}
	}
	return out
}

// TCP is a TCP header.
type TCP struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	DataOffset uint8 // 32-bit words
	Flags      TCPFlags
	Window     uint16
	Checksum   uint16
	Urgent     uint16
	Options    []byte
	Payload    []byte // Set when the segment does not carry RPC
}

// UDP is a UDP header.
type UDP struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
	Payload  []byte // Set when the datagram does not carry RPC
}

// RecordMark is the RPC-over-TCP record marking header.
type RecordMark struct {
	Last bool
	Size uint32
}

// AuthSysParams is the AUTH_SYS credential body.
type AuthSysParams struct {
	Stamp   uint32
	Machine string
	UID     uint32
	GID     uint32
	GIDs    []uint32
}

// GSSCredential is the RPCSEC_GSS credential body.
type GSSCredential struct {
	Version   uint32
	Procedure GSSProc
	Sequence  uint32
	Service   GSSService
	Context   []byte
}

// Credential is an RPC call credential. Body keeps the raw opaque body;
// Sys or GSS is filled in when the flavor is understood.
type Credential struct {
	Flavor AuthFlavor
	Body   []byte
	Sys    *AuthSysParams
	GSS    *GSSCredential
}

// Verifier is an RPC verifier. For RPCSEC_GSS, Body is the GSS token.
type Verifier struct {
	Flavor AuthFlavor
	Body   []byte
}

// RPCCall is an ONC RPC call header.
type RPCCall struct {
	Transport  uint8
	Fragment   *RecordMark // TCP only
	XID        uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Credential Credential
	Verifier   Verifier
	Payload    []byte // Program payload kept verbatim when not decoded
}

// Context returns the call context the matching reply will need.
func (c *RPCCall) Context() CallContext {
	ctx := CallContext{
		XID:       c.XID,
		Transport: c.Transport,
		Program:   c.Program,
		Version:   c.Version,
		Procedure: c.Procedure,
		Flavor:    c.Credential.Flavor,
	}
	if gss := c.Credential.GSS; gss != nil {
		ctx.GSSProc = gss.Procedure
		ctx.GSSService = gss.Service
	}
	return ctx
}

// RPCReply is an ONC RPC reply header.
type RPCReply struct {
	Transport  uint8
	Fragment   *RecordMark
	XID        uint32
	ReplyStat  ReplyStat
	Verifier   *Verifier // nil for denied replies
	AcceptStat AcceptStat
	RejectStat RejectStat
	MismatchLo uint32 // PROG_MISMATCH or RPC_MISMATCH range
	MismatchHi uint32
	AuthStat   uint32       // AUTH_ERROR reason
	Call       *CallContext // nil when no matching call was seen
	Payload    []byte
}

// Matched reports whether the reply was correlated with its call.
func (r *RPCReply) Matched() bool { return r.Call != nil }

// Succeeded reports whether the reply carries procedure results.
func (r *RPCReply) Succeeded() bool {
	return r.ReplyStat == MsgAccepted && r.AcceptStat == Success
}

// GSSData is the RPCSEC_GSS data preceding the program payload.
type GSSData struct {
	Direction MsgType
	Procedure GSSProc

	// DATA with integrity service
	Length uint32
	SeqNum uint32

	// INIT / CONTINUE_INIT
	Token     []byte
	Mechanism string // mechanism OID of an initial context token, if recognised
	Context   []byte // reply only
	Major     uint32 // reply only
	Minor     uint32 // reply only
	SeqWindow uint32 // reply only
}

// MICHeader is the RFC 4121 MIC token header found in a checksum.
type MICHeader struct {
	Flags     uint8
	SndSeqNum uint64
	Checksum  []byte
}

// GSSChecksum is the RPCSEC_GSS checksum following the program payload.
type GSSChecksum struct {
	Direction MsgType
	Token     []byte
	MIC       *MICHeader // nil when the token is not a krb5 MIC token
}

// PortmapMapping is a portmap (program, version, protocol, port) tuple.
type PortmapMapping struct {
	Program  uint32
	Version  uint32
	Protocol uint32
	Port     uint32
}

// PortmapCallArgs is the argument of PMAPPROC_CALLIT.
type PortmapCallArgs struct {
	Program   uint32
	Version   uint32
	Procedure uint32
	Args      []byte
}

// PortmapCallResult is the result of PMAPPROC_CALLIT.
type PortmapCallResult struct {
	Port   uint32
	Result []byte
}

// Portmap is a portmap version 2 call or reply body.
type Portmap struct {
	Direction  MsgType
	Procedure  uint32
	Mapping    *PortmapMapping    // SET, UNSET, GETPORT calls
	Mappings   []PortmapMapping   // DUMP reply
	Port       uint32             // GETPORT reply
	Result     bool               // SET, UNSET reply
	CallArgs   *PortmapCallArgs   // CALLIT call
	CallResult *PortmapCallResult // CALLIT reply
}

func (*Ethernet) Role() Role    { return RoleLink }
func (*LinuxSLL) Role() Role    { return RoleLink }
func (*IPv4) Role() Role        { return RoleNetwork }
func (*IPv6) Role() Role        { return RoleNetwork }
func (*TCP) Role() Role         { return RoleTransport }
func (*UDP) Role() Role         { return RoleTransport }
func (*RPCCall) Role() Role     { return RoleRPC }
func (*RPCReply) Role() Role    { return RoleRPC }
func (*GSSData) Role() Role     { return RoleSecurity }
func (*Portmap) Role() Role     { return RoleApplication }
func (*GSSChecksum) Role() Role { return RoleChecksum }

func (*Ethernet) Name() string    { return "ethernet" }
func (*LinuxSLL) Name() string    { return "linux_sll" }
func (*IPv4) Name() string        { return "ipv4" }
func (*IPv6) Name() string        { return "ipv6" }
func (*TCP) Name() string         { return "tcp" }
func (*UDP) Name() string         { return "udp" }
func (*RPCCall) Name() string     { return "rpc_call" }
func (*RPCReply) Name() string    { return "rpc_reply" }
func (*GSSData) Name() string     { return "gss_data" }
func (*Portmap) Name() string     { return "portmap" }
func (*GSSChecksum) Name() string { return "gss_checksum" }

func (*Ethernet) layer()    {}
func (*LinuxSLL) layer()    {}
func (*IPv4) layer()        {}
func (*IPv6) layer()        {}
func (*TCP) layer()         {}
func (*UDP) layer()         {}
func (*RPCCall) layer()     {}
func (*RPCReply) layer()    {}
func (*GSSData) layer()     {}
func (*Portmap) layer()     {}
func (*GSSChecksum) layer() {}
