// Package core defines core types.
package core

import (
	"strconv"
)

// Labels are flat key-value summaries of a decoded packet, convenient for
// assertions and CLI output.
type Labels map[string]string

// Label naming constants following {protocol}.{field} convention.
const (
	LabelIPVersion = "ip.version"
	LabelIPSrc     = "ip.src"
	LabelIPDst     = "ip.dst"
	LabelIPProto   = "ip.proto"

	LabelTransportProto = "transport.proto" // "tcp" or "udp"
	LabelSrcPort        = "transport.src_port"
	LabelDstPort        = "transport.dst_port"
	LabelTCPFlags       = "tcp.flags"

	LabelRPCXID       = "rpc.xid" // hex, 0xXXXXXXXX
	LabelRPCType      = "rpc.type"
	LabelRPCProgram   = "rpc.program"
	LabelRPCVersion   = "rpc.version"
	LabelRPCProcedure = "rpc.procedure"
	LabelRPCFlavor    = "rpc.flavor"
	LabelRPCStatus    = "rpc.status"
	LabelRPCMatched   = "rpc.matched" // "true"/"false", replies only

	LabelGSSProc    = "gss.proc"
	LabelGSSService = "gss.service"
	LabelGSSSeqNum  = "gss.seq_num"
	LabelGSSMech    = "gss.mechanism"
	LabelGSSMIC     = "gss.mic" // "true" when the checksum parsed as a MIC token

	LabelPortmapProc = "portmap.proc"
	LabelPortmapPort = "portmap.port"
)

// Labels summarises the packet's layers.
func (p *Packet) Labels() Labels {
	labels := make(Labels)
	for _, l := range p.Layers() {
		switch v := l.(type) {
		case *IPv4:
			labels[LabelIPVersion] = "4"
			labels[LabelIPSrc] = v.Src.String()
			labels[LabelIPDst] = v.Dst.String()
			labels[LabelIPProto] = strconv.Itoa(int(v.Protocol))
		case *IPv6:
			labels[LabelIPVersion] = "6"
			labels[LabelIPSrc] = v.Src.String()
			labels[LabelIPDst] = v.Dst.String()
			labels[LabelIPProto] = strconv.Itoa(int(v.NextHeader))
		case *TCP:
			labels[LabelTransportProto] = "tcp"
			labels[LabelSrcPort] = strconv.Itoa(int(v.SrcPort))
			labels[LabelDstPort] = strconv.Itoa(int(v.DstPort))
			labels[LabelTCPFlags] = v.Flags.String()
		case *UDP:
			labels[LabelTransportProto] = "udp"
			labels[LabelSrcPort] = strconv.Itoa(int(v.SrcPort))
			labels[LabelDstPort] = strconv.Itoa(int(v.DstPort))
		case *RPCCall:
			labels[LabelRPCXID] = hex32(v.XID)
			labels[LabelRPCType] = MsgCall.String()
			labels[LabelRPCProgram] = ProgramName(v.Program)
			labels[LabelRPCVersion] = strconv.FormatUint(uint64(v.Version), 10)
			labels[LabelRPCProcedure] = strconv.FormatUint(uint64(v.Procedure), 10)
			labels[LabelRPCFlavor] = v.Credential.Flavor.String()
			if gss := v.Credential.GSS; gss != nil {
				labels[LabelGSSProc] = gss.Procedure.String()
				labels[LabelGSSService] = gss.Service.String()
			}
		case *RPCReply:
			labels[LabelRPCXID] = hex32(v.XID)
			labels[LabelRPCType] = MsgReply.String()
			labels[LabelRPCMatched] = strconv.FormatBool(v.Matched())
			if v.ReplyStat == MsgAccepted {
				labels[LabelRPCStatus] = v.AcceptStat.String()
			} else {
				labels[LabelRPCStatus] = v.RejectStat.String()
			}
			if c := v.Call; c != nil {
				labels[LabelRPCProgram] = ProgramName(c.Program)
				labels[LabelRPCVersion] = strconv.FormatUint(uint64(c.Version), 10)
				labels[LabelRPCProcedure] = strconv.FormatUint(uint64(c.Procedure), 10)
				labels[LabelRPCFlavor] = c.Flavor.String()
			}
		case *GSSData:
			labels[LabelGSSProc] = v.Procedure.String()
			if v.Procedure == GSSProcData {
				labels[LabelGSSSeqNum] = strconv.FormatUint(uint64(v.SeqNum), 10)
			}
			if v.Mechanism != "" {
				labels[LabelGSSMech] = v.Mechanism
			}
		case *GSSChecksum:
			labels[LabelGSSMIC] = strconv.FormatBool(v.MIC != nil)
		case *Portmap:
			labels[LabelPortmapProc] = PortmapProcName(v.Procedure)
			if v.Direction == MsgReply && v.Procedure == PortmapGetPort {
				labels[LabelPortmapPort] = strconv.FormatUint(uint64(v.Port), 10)
			}
		}
	}
	return labels
}

func hex32(v uint32) string {
	s := strconv.FormatUint(uint64(v), 16)
	for len(s) < 8 {
		s = "0" + s
	}
	return "0x" + s
}
