package filter

import (
	"fmt"

	"golang.org/x/net/bpf"

	"firestige.xyz/pktt/internal/core"
)

// acceptLen is returned for matching frames; the VM reports it as the
// number of bytes to keep.
const acceptLen = 262144

// label names a program position that jumps resolve to once the program
// is complete.
type label int

const (
	accept label = iota
	reject
)

type pendingJump struct {
	cond   bpf.JumpTest
	val    uint32
	target label
	always bool
}

// builder emits a BPF program with forward jumps to labels.
type builder struct {
	ins    []bpf.Instruction
	jumps  map[int]pendingJump
	labels map[label]int
	next   label
}

func newBuilder() *builder {
	return &builder{
		jumps:  make(map[int]pendingJump),
		labels: make(map[label]int),
		next:   reject + 1,
	}
}

func (b *builder) newLabel() label {
	l := b.next
	b.next++
	return l
}

func (b *builder) mark(l label) { b.labels[l] = len(b.ins) }

func (b *builder) emit(ins ...bpf.Instruction) { b.ins = append(b.ins, ins...) }

// jumpIf jumps to target when A cond val holds and falls through otherwise.
func (b *builder) jumpIf(cond bpf.JumpTest, val uint32, target label) {
	b.jumps[len(b.ins)] = pendingJump{cond: cond, val: val, target: target}
	b.ins = append(b.ins, nil)
}

func (b *builder) jump(target label) {
	b.jumps[len(b.ins)] = pendingJump{target: target, always: true}
	b.ins = append(b.ins, nil)
}

// finish appends the accept and reject returns and resolves every jump.
func (b *builder) finish() ([]bpf.Instruction, error) {
	b.mark(accept)
	b.emit(bpf.RetConstant{Val: acceptLen})
	b.mark(reject)
	b.emit(bpf.RetConstant{Val: 0})

	for at, j := range b.jumps {
		to, ok := b.labels[j.target]
		if !ok {
			return nil, fmt.Errorf("filter program: label %d never placed", j.target)
		}
		skip := to - at - 1
		if j.always {
			b.ins[at] = bpf.Jump{Skip: uint32(skip)}
			continue
		}
		if skip > 255 {
			return nil, fmt.Errorf("filter program: jump of %d instructions", skip)
		}
		b.ins[at] = bpf.JumpIf{Cond: j.cond, Val: j.val, SkipTrue: uint8(skip)}
	}
	return b.ins, nil
}

// linkLayout describes where the network header starts for a link type
// and how its family is told apart.
type linkLayout struct {
	nh        uint32 // network header offset
	etherType uint32 // offset of the EtherType, or 0 to test the IP version nibble
}

func layoutOf(lt core.LinkType) (linkLayout, bool) {
	switch lt {
	case core.LinkTypeEthernet:
		return linkLayout{nh: 14, etherType: 12}, true
	case core.LinkTypeLinuxSLL:
		return linkLayout{nh: 16, etherType: 14}, true
	case core.LinkTypeRaw, core.LinkTypeIPv4, core.LinkTypeIPv6:
		return linkLayout{nh: 0}, true
	}
	return linkLayout{}, false
}

// IPv4 and IPv6 header offsets, relative to the network header.
const (
	ipv4FragOff  = 6
	ipv4Proto    = 9
	ipv4Src      = 12
	ipv4Dst      = 16
	ipv6Next     = 6
	ipv6Src      = 8
	ipv6Dst      = 24
	ipv6Len      = 40
	ipv4FragMask = 0x1fff
)

// compile turns q into a program for frames of link type lt. Frames that
// do not match the layout (VLAN tagged Ethernet, IPv6 extension headers)
// are rejected whenever a term needs to look past the link header.
func compile(q *query, lt core.LinkType) ([]bpf.Instruction, error) {
	layout, ok := layoutOf(lt)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedLink, lt)
	}
	b := newBuilder()
	if q.empty() {
		return b.finish()
	}

	switch q.family {
	case 4:
		b.requireFamily(layout, 4, reject)
		b.ipv4Terms(q, layout.nh)
	case 6:
		b.requireFamily(layout, 6, reject)
		b.ipv6Terms(q, layout.nh)
	default:
		// tcp, udp and port alone match either family.
		tryV6 := b.newLabel()
		b.requireFamily(layout, 4, tryV6)
		b.ipv4Terms(q, layout.nh)
		b.jump(accept)
		b.mark(tryV6)
		b.requireFamily(layout, 6, reject)
		b.ipv6Terms(q, layout.nh)
	}
	return b.finish()
}

// requireFamily jumps to otherwise unless the frame carries the IP version.
func (b *builder) requireFamily(layout linkLayout, version int, otherwise label) {
	if layout.etherType != 0 {
		ethType := uint32(core.EtherTypeIPv4)
		if version == 6 {
			ethType = uint32(core.EtherTypeIPv6)
		}
		b.emit(bpf.LoadAbsolute{Off: layout.etherType, Size: 2})
		b.jumpIf(bpf.JumpNotEqual, ethType, otherwise)
		return
	}
	b.emit(
		bpf.LoadAbsolute{Off: layout.nh, Size: 1},
		bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: 0xf0},
	)
	b.jumpIf(bpf.JumpNotEqual, uint32(version)<<4, otherwise)
}

func (b *builder) ipv4Terms(q *query, nh uint32) {
	if q.proto != 0 || len(q.ports) > 0 {
		b.emit(bpf.LoadAbsolute{Off: nh + ipv4Proto, Size: 1})
		b.requireProto(q.proto)
	}
	for _, h := range q.hosts {
		b.matchAddr(h, nh+ipv4Src, nh+ipv4Dst)
	}
	if len(q.ports) == 0 {
		return
	}
	// Ports live in the first fragment only.
	b.emit(bpf.LoadAbsolute{Off: nh + ipv4FragOff, Size: 2})
	b.jumpIf(bpf.JumpBitsSet, ipv4FragMask, reject)
	b.emit(bpf.LoadMemShift{Off: nh})
	for _, p := range q.ports {
		b.matchPort(p, func(off uint32) bpf.Instruction {
			return bpf.LoadIndirect{Off: nh + off, Size: 2}
		})
	}
}

func (b *builder) ipv6Terms(q *query, nh uint32) {
	if q.proto != 0 || len(q.ports) > 0 {
		b.emit(bpf.LoadAbsolute{Off: nh + ipv6Next, Size: 1})
		b.requireProto(q.proto)
	}
	for _, h := range q.hosts {
		b.matchAddr(h, nh+ipv6Src, nh+ipv6Dst)
	}
	for _, p := range q.ports {
		b.matchPort(p, func(off uint32) bpf.Instruction {
			return bpf.LoadAbsolute{Off: nh + ipv6Len + off, Size: 2}
		})
	}
}

// requireProto checks the protocol number loaded in A; proto 0 accepts
// either transport.
func (b *builder) requireProto(proto uint8) {
	if proto != 0 {
		b.jumpIf(bpf.JumpNotEqual, uint32(proto), reject)
		return
	}
	ok := b.newLabel()
	b.jumpIf(bpf.JumpEqual, uint32(core.ProtocolTCP), ok)
	b.jumpIf(bpf.JumpNotEqual, uint32(core.ProtocolUDP), reject)
	b.mark(ok)
}

func (b *builder) matchAddr(h hostTerm, srcOff, dstOff uint32) {
	raw := h.addr.AsSlice()
	compare := func(off uint32, otherwise label) {
		for i := 0; i < len(raw); i += 4 {
			word := uint32(raw[i])<<24 | uint32(raw[i+1])<<16 | uint32(raw[i+2])<<8 | uint32(raw[i+3])
			b.emit(bpf.LoadAbsolute{Off: off + uint32(i), Size: 4})
			b.jumpIf(bpf.JumpNotEqual, word, otherwise)
		}
	}
	switch h.dir {
	case src:
		compare(srcOff, reject)
	case dst:
		compare(dstOff, reject)
	default:
		tryDst, done := b.newLabel(), b.newLabel()
		compare(srcOff, tryDst)
		b.jump(done)
		b.mark(tryDst)
		compare(dstOff, reject)
		b.mark(done)
	}
}

func (b *builder) matchPort(p portTerm, load func(off uint32) bpf.Instruction) {
	const srcPort, dstPort = 0, 2
	switch p.dir {
	case src:
		b.emit(load(srcPort))
		b.jumpIf(bpf.JumpNotEqual, uint32(p.port), reject)
	case dst:
		b.emit(load(dstPort))
		b.jumpIf(bpf.JumpNotEqual, uint32(p.port), reject)
	default:
		done := b.newLabel()
		b.emit(load(srcPort))
		b.jumpIf(bpf.JumpEqual, uint32(p.port), done)
		b.emit(load(dstPort))
		b.jumpIf(bpf.JumpNotEqual, uint32(p.port), reject)
		b.mark(done)
	}
}
