package output

import (
	"strconv"
	"strings"
	"time"

	"firestige.xyz/pktt/internal/core"
)

// PacketView is the flattened, printable form of a decoded packet.
type PacketView struct {
	Index       int               `yaml:"index" json:"index"`
	Time        time.Time         `yaml:"time" json:"time"`
	LinkType    string            `yaml:"link_type" json:"link_type"`
	Length      uint32            `yaml:"length" json:"length"`
	Layers      []string          `yaml:"layers" json:"layers"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Diagnostics []string          `yaml:"diagnostics,omitempty" json:"diagnostics,omitempty"`
	Error       string            `yaml:"error,omitempty" json:"error,omitempty"`
}

// NewPacketView flattens pkt.
func NewPacketView(pkt *core.Packet) PacketView {
	v := PacketView{
		Index:    pkt.Index,
		Time:     pkt.Timestamp.UTC(),
		LinkType: pkt.LinkType.String(),
		Length:   pkt.OrigLen,
		Layers:   make([]string, 0, pkt.Len()),
		Labels:   pkt.Labels(),
	}
	for _, l := range pkt.Layers() {
		v.Layers = append(v.Layers, l.Name())
	}
	for _, d := range pkt.Diagnostics {
		v.Diagnostics = append(v.Diagnostics, d.String())
	}
	if pkt.Err != nil {
		v.Error = pkt.Err.Error()
	}
	return v
}

// packetHeaders are the columns of the packet table.
var packetHeaders = []string{"No", "Time", "Source", "Destination", "Proto", "XID", "Type", "Program", "Proc", "Status", "Info"}

// Row returns the packet as a table row.
func (v PacketView) Row() []string {
	l := v.Labels
	src, dst := l[core.LabelIPSrc], l[core.LabelIPDst]
	if port := l[core.LabelSrcPort]; port != "" {
		src += ":" + port
	}
	if port := l[core.LabelDstPort]; port != "" {
		dst += ":" + port
	}

	status := l[core.LabelRPCStatus]
	if l[core.LabelRPCMatched] == "false" {
		status += " (unmatched)"
	}

	var info []string
	if len(v.Layers) > 0 {
		info = append(info, v.Layers[len(v.Layers)-1])
	}
	if p := l[core.LabelPortmapProc]; p != "" {
		info = append(info, p)
	}
	if port := l[core.LabelPortmapPort]; port != "" {
		info = append(info, "port="+port)
	}
	if svc := l[core.LabelGSSService]; svc != "" {
		info = append(info, svc)
	}
	if mech := l[core.LabelGSSMech]; mech != "" {
		info = append(info, mech)
	}
	if v.Error != "" {
		info = append(info, "["+v.Error+"]")
	}

	return []string{
		strconv.Itoa(v.Index),
		v.Time.Format("15:04:05.000000"),
		src,
		dst,
		l[core.LabelTransportProto],
		l[core.LabelRPCXID],
		l[core.LabelRPCType],
		l[core.LabelRPCProgram],
		l[core.LabelRPCProcedure],
		strings.TrimSpace(status),
		strings.Join(info, " "),
	}
}
