package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"firestige.xyz/pktt/internal/core"
	"firestige.xyz/pktt/internal/log"
	"firestige.xyz/pktt/internal/metrics"
)

// Session decodes the frames of one trace in capture order. It owns the
// RPC correlator, so independent traces need independent sessions. A
// Session is not safe for concurrent use.
type Session struct {
	calls     *Correlator
	log       log.Logger
	strictGSS bool
	frames    int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for decode diagnostics.
func WithLogger(l log.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithStrictGSS makes malformed RPCSEC_GSS envelopes fail the packet
// instead of being dropped with a diagnostic.
func WithStrictGSS(strict bool) Option {
	return func(s *Session) { s.strictGSS = strict }
}

// NewSession creates a session with an empty correlator.
func NewSession(opts ...Option) *Session {
	s := &Session{
		calls: NewCorrelator(),
		log:   log.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decode decodes one frame. The returned packet is never nil and is sealed;
// when decoding stopped early the error is also stored in Packet.Err and
// the packet holds the layers decoded before the failure. A failed frame
// does not affect later ones.
func (s *Session) Decode(frame core.RawFrame) (*core.Packet, error) {
	start := time.Now()
	s.frames++
	pkt := core.NewPacket(s.frames, frame)
	p := &pass{s: s, c: NewCursor(frame.Data), pkt: pkt}

	err := p.decodeLink(frame.LinkType)
	if err != nil {
		pkt.Err = err
		metrics.DecodeErrorsTotal.WithLabelValues(errorReason(err)).Inc()
		s.log.WithFields(map[string]interface{}{
			"frame":  pkt.Index,
			"layers": pkt.Len(),
		}).WithError(err).Debug("decode stopped")
	}
	pkt.Seal()

	metrics.FramesTotal.WithLabelValues(frame.LinkType.String()).Inc()
	metrics.DecodeLatencySeconds.Observe(time.Since(start).Seconds())
	return pkt, err
}

// Each decodes every frame of src and hands the packets to fn in capture
// order. It stops at io.EOF, on a read error, when fn fails or when ctx is
// done. Decode failures are not errors here; they are reported on the
// packets.
func (s *Session) Each(ctx context.Context, src FrameSource, fn func(*core.Packet) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame %d: %w", s.frames+1, err)
		}
		pkt, _ := s.Decode(frame)
		if err := fn(pkt); err != nil {
			return err
		}
	}
}

// DecodeAll decodes every frame of src.
func (s *Session) DecodeAll(ctx context.Context, src FrameSource) ([]*core.Packet, error) {
	var out []*core.Packet
	err := s.Each(ctx, src, func(pkt *core.Packet) error {
		out = append(out, pkt)
		return nil
	})
	return out, err
}

// Pending returns the number of calls still waiting for their reply.
func (s *Session) Pending() int { return s.calls.Len() }

// Frames returns the number of frames decoded so far.
func (s *Session) Frames() int { return s.frames }

func (s *Session) observeReply(matched bool) {
	if matched {
		metrics.RPCRepliesTotal.WithLabelValues("matched").Inc()
	} else {
		metrics.RPCRepliesTotal.WithLabelValues("unmatched").Inc()
	}
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, core.ErrTruncated):
		return "truncated"
	case errors.Is(err, core.ErrMalformed):
		return "malformed"
	case errors.Is(err, core.ErrDuplicateLayer):
		return "duplicate_layer"
	default:
		return "other"
	}
}

// pass is the state of decoding one frame.
type pass struct {
	s   *Session
	c   *Cursor
	pkt *core.Packet
}

func (p *pass) add(l core.Layer) error {
	if err := p.pkt.Add(l); err != nil {
		return err
	}
	metrics.LayersTotal.WithLabelValues(l.Name()).Inc()
	return nil
}

// addAll registers layers in order and then returns cause.
func (p *pass) addAll(layers []core.Layer, cause error) error {
	for _, l := range layers {
		if err := p.add(l); err != nil {
			return err
		}
	}
	return cause
}

// limit bounds the cursor to the n bytes a length field declares, dropping
// link-layer padding. Lengths of zero or past the captured data are
// ignored.
func (p *pass) limit(n int) {
	if n > 0 && n < p.c.Remaining() {
		p.c, _ = p.c.Sub(n)
	}
}

// diagnose records a non-fatal failure of an optional decode stage. With
// strict GSS decoding, failures of GSS stages are returned instead.
func (p *pass) diagnose(stage string, err error) error {
	_ = p.pkt.AddDiagnostic(stage, err)
	metrics.DiagnosticsTotal.WithLabelValues(stage).Inc()
	p.s.log.WithFields(map[string]interface{}{
		"frame": p.pkt.Index,
		"layer": stage,
	}).WithError(err).Debug("optional layer dropped")

	if p.s.strictGSS && strings.HasPrefix(stage, "gss") {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return nil
}
