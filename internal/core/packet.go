package core

import (
	"fmt"
	"time"
)

// Packet accumulates the layers decoded from one RawFrame, one per role, in
// on-wire order. It is built by a single decode pass and sealed when the
// pass ends; after that it only serves reads.
type Packet struct {
	Index      int // 1-based position in the trace
	Timestamp  time.Time
	LinkType   LinkType
	CaptureLen uint32
	OrigLen    uint32

	// Err is the structural failure that stopped decoding (wraps
	// ErrTruncated), nil when the packet decoded to its natural end.
	Err error

	// Diagnostics lists non-fatal decode failures, e.g. a dropped GSS
	// envelope.
	Diagnostics []Diagnostic

	layers [numRoles]Layer
	order  []Role
	sealed bool
}

// NewPacket creates an empty packet for the given frame.
func NewPacket(index int, frame RawFrame) *Packet {
	return &Packet{
		Index:      index,
		Timestamp:  frame.Timestamp,
		LinkType:   frame.LinkType,
		CaptureLen: frame.CaptureLen,
		OrigLen:    frame.OrigLen,
	}
}

// Add registers l under its role.
func (p *Packet) Add(l Layer) error {
	if p.sealed {
		return ErrPacketSealed
	}
	role := l.Role()
	if p.layers[role] != nil {
		return fmt.Errorf("%w: %s holds %s, got %s", ErrDuplicateLayer, role, p.layers[role].Name(), l.Name())
	}
	p.layers[role] = l
	p.order = append(p.order, role)
	return nil
}

// AddDiagnostic records a non-fatal decode failure.
func (p *Packet) AddDiagnostic(layer string, err error) error {
	if p.sealed {
		return ErrPacketSealed
	}
	p.Diagnostics = append(p.Diagnostics, Diagnostic{Layer: layer, Err: err})
	return nil
}

// Seal ends the decode pass.
func (p *Packet) Seal() { p.sealed = true }

// Sealed reports whether the decode pass has completed.
func (p *Packet) Sealed() bool { return p.sealed }

// Layer returns the layer registered for role, or nil.
func (p *Packet) Layer(role Role) Layer {
	if role >= numRoles {
		return nil
	}
	return p.layers[role]
}

// Has reports whether a layer is registered for role.
func (p *Packet) Has(role Role) bool { return p.Layer(role) != nil }

// Len returns the number of registered layers.
func (p *Packet) Len() int { return len(p.order) }

// Layers returns the registered layers in decode order.
func (p *Packet) Layers() []Layer {
	out := make([]Layer, 0, len(p.order))
	for _, r := range p.order {
		out = append(out, p.layers[r])
	}
	return out
}

// LayerOf returns the first layer of concrete type T, e.g.
// LayerOf[*core.RPCReply](pkt).
func LayerOf[T Layer](p *Packet) (T, bool) {
	for _, r := range p.order {
		if l, ok := p.layers[r].(T); ok {
			return l, true
		}
	}
	var zero T
	return zero, false
}

func (p *Packet) String() string {
	s := fmt.Sprintf("#%d %s", p.Index, p.Timestamp.Format("15:04:05.000000"))
	for _, l := range p.Layers() {
		s += " " + l.Name()
	}
	if p.Err != nil {
		s += " [" + p.Err.Error() + "]"
	}
	return s
}
