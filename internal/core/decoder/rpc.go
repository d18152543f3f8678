package decoder

import (
	"encoding/binary"

	"firestige.xyz/pktt/internal/core"
)

const rpcVersion = 2

var (
	rpcHeaderLayout = Layout{U32, U32}           // xid, msg_type
	callBodyLayout  = Layout{U32, U32, U32, U32} // rpcvers, prog, vers, proc
)

// looksLikeRPC reports whether an RPC message header starts skip bytes
// past the cursor. It never consumes anything.
func (p *pass) looksLikeRPC(skip int) bool {
	b, err := p.c.Peek(skip + 12)
	if err != nil {
		return false
	}
	b = b[skip:]
	switch core.MsgType(binary.BigEndian.Uint32(b[4:])) {
	case core.MsgCall:
		return binary.BigEndian.Uint32(b[8:]) == rpcVersion
	case core.MsgReply:
		stat := core.ReplyStat(binary.BigEndian.Uint32(b[8:]))
		return stat == core.MsgAccepted || stat == core.MsgDenied
	}
	return false
}

// decodeRPC decodes one RPC message. mark is the TCP record marker, nil on
// UDP.
func (p *pass) decodeRPC(transport uint8, mark *core.RecordMark) error {
	f, err := p.c.ReadFixed(rpcHeaderLayout)
	if err != nil {
		return err
	}
	xid := uint32(f.Uint(0))
	if core.MsgType(f.Uint(1)) == core.MsgCall {
		return p.decodeCall(transport, mark, xid)
	}
	return p.decodeReply(transport, mark, xid)
}

func (p *pass) decodeCall(transport uint8, mark *core.RecordMark, xid uint32) error {
	f, err := p.c.ReadFixed(callBodyLayout)
	if err != nil {
		return err
	}
	call := &core.RPCCall{
		Transport:  transport,
		Fragment:   mark,
		XID:        xid,
		RPCVersion: uint32(f.Uint(0)),
		Program:    uint32(f.Uint(1)),
		Version:    uint32(f.Uint(2)),
		Procedure:  uint32(f.Uint(3)),
	}
	if call.Credential, err = p.decodeCredential(); err != nil {
		return err
	}
	flavor, body, err := p.decodeOpaqueAuth()
	if err != nil {
		return err
	}
	call.Verifier = core.Verifier{Flavor: flavor, Body: body}

	ctx := call.Context()
	ctx.Timestamp = p.pkt.Timestamp
	if prev, ok := p.s.calls.Peek(xid); ok {
		p.s.log.WithFields(map[string]interface{}{
			"frame":   p.pkt.Index,
			"xid":     xid,
			"program": core.ProgramName(prev.Program),
		}).Debug("xid reused before its reply")
	}
	p.s.calls.Insert(ctx)

	return p.decodeBody(call, &call.Payload, &ctx, core.MsgCall, ctx.Flavor == core.RPCSecGSS)
}

func (p *pass) decodeReply(transport uint8, mark *core.RecordMark, xid uint32) error {
	stat, err := p.c.Uint32()
	if err != nil {
		return err
	}
	reply := &core.RPCReply{
		Transport: transport,
		Fragment:  mark,
		XID:       xid,
		ReplyStat: core.ReplyStat(stat),
	}
	if reply.ReplyStat == core.MsgAccepted {
		err = p.decodeAccepted(reply)
	} else {
		err = p.decodeDenied(reply)
	}
	if err != nil {
		return err
	}

	ctx, ok := p.s.calls.Take(xid)
	p.s.observeReply(ok)
	if !ok {
		p.s.log.WithField("frame", p.pkt.Index).WithField("xid", xid).Debug("reply without a recorded call")
	}
	if ok {
		reply.Call = &ctx
	}
	if !ok || !reply.Succeeded() {
		reply.Payload = p.c.Rest()
		return p.add(reply)
	}
	// A reply carries GSS data only when its own verifier is RPCSEC_GSS.
	gss := ctx.Flavor == core.RPCSecGSS && reply.Verifier.Flavor == core.RPCSecGSS
	return p.decodeBody(reply, &reply.Payload, &ctx, core.MsgReply, gss)
}

func (p *pass) decodeAccepted(reply *core.RPCReply) error {
	flavor, body, err := p.decodeOpaqueAuth()
	if err != nil {
		return err
	}
	reply.Verifier = &core.Verifier{Flavor: flavor, Body: body}
	stat, err := p.c.Uint32()
	if err != nil {
		return err
	}
	reply.AcceptStat = core.AcceptStat(stat)
	if reply.AcceptStat == core.ProgMismatch {
		f, err := p.c.ReadFixed(Layout{U32, U32})
		if err != nil {
			return err
		}
		reply.MismatchLo, reply.MismatchHi = uint32(f.Uint(0)), uint32(f.Uint(1))
	}
	return nil
}

func (p *pass) decodeDenied(reply *core.RPCReply) error {
	stat, err := p.c.Uint32()
	if err != nil {
		return err
	}
	reply.RejectStat = core.RejectStat(stat)
	switch reply.RejectStat {
	case core.RPCMismatch:
		f, err := p.c.ReadFixed(Layout{U32, U32})
		if err != nil {
			return err
		}
		reply.MismatchLo, reply.MismatchHi = uint32(f.Uint(0)), uint32(f.Uint(1))
	case core.AuthError:
		if reply.AuthStat, err = p.c.Uint32(); err != nil {
			return err
		}
	}
	return nil
}

// decodeBody decodes what follows an RPC header: the GSS data, the program
// payload and the GSS checksum. The layers are registered in that order;
// on a truncated body the ones already decoded are kept. Body bytes no
// decoder consumed stay in payload.
func (p *pass) decodeBody(msg core.Layer, payload *[]byte, ctx *core.CallContext, dir core.MsgType, gss bool) error {
	layers := []core.Layer{msg}
	body := p.c
	verbatim := false
	var err error

	if gss {
		var gss *core.GSSData
		gss, body, verbatim, err = p.decodeGSSData(ctx, dir)
		if gss != nil {
			layers = append(layers, gss)
		}
		if err != nil {
			return p.addAll(layers, err)
		}
	}

	var app core.Layer
	if !verbatim {
		if app, err = p.decodeApplication(body, ctx, dir); err != nil {
			return p.addAll(layers, err)
		}
	}
	if app != nil {
		layers = append(layers, app)
		if body.Remaining() > 0 {
			*payload = body.Rest()
		}
	} else {
		*payload = body.Rest()
	}

	if gss && ctx.GSSIntegrity() {
		sum, err := p.decodeGSSChecksum(dir)
		if sum != nil {
			layers = append(layers, sum)
		}
		if err != nil {
			return p.addAll(layers, err)
		}
	}
	return p.addAll(layers, nil)
}
