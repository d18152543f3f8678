// Package decoder turns captured frames into layered packets: link,
// network, transport, ONC RPC, RPCSEC_GSS and program payload.
package decoder

import (
	"firestige.xyz/pktt/internal/core"
)

// Decoder decodes raw frames into packets.
type Decoder interface {
	Decode(frame core.RawFrame) (*core.Packet, error)
}

// FrameSource yields frames in capture order. ReadFrame returns io.EOF
// after the last frame.
type FrameSource interface {
	ReadFrame() (core.RawFrame, error)
}
