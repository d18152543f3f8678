package decoder

import (
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/gssapi"

	"firestige.xyz/pktt/internal/core"
)

// gssMinBytes is the least a GSS envelope needs before a decode is tried.
const gssMinBytes = 4

var (
	gssIntegLayout   = Layout{U32, U32}      // databody length, seq_num
	gssInitResLayout = Layout{U32, U32, U32} // major, minor, seq_window
	knownMechanisms  = []gssapi.OIDName{gssapi.OIDKRB5, gssapi.OIDSPNEGO}
)

// decodeGSSData decodes the RPCSEC_GSS data preceding the program payload.
// It returns the cursor the program decoder should read and whether the
// payload must be kept verbatim instead (privacy, context setup or a
// broken envelope). A missing envelope is not an error; a malformed one
// is a diagnostic unless strict GSS decoding is on.
func (p *pass) decodeGSSData(ctx *core.CallContext, dir core.MsgType) (*core.GSSData, *Cursor, bool, error) {
	if p.c.Remaining() < gssMinBytes {
		return nil, p.c, false, nil
	}
	switch {
	case ctx.GSSIntegrity():
		return p.decodeGSSInteg(dir)
	case ctx.GSSProc == core.GSSProcData && ctx.GSSService == core.GSSSvcPrivacy:
		return nil, p.c, true, nil
	case ctx.GSSProc.IsInit():
		var gss *core.GSSData
		var err error
		if dir == core.MsgCall {
			gss, err = p.decodeGSSInitCall(ctx.GSSProc)
		} else {
			gss, err = p.decodeGSSInitReply(ctx.GSSProc)
		}
		if err != nil {
			return nil, p.c, true, p.diagnose("gss_data", err)
		}
		return gss, p.c, true, nil
	}
	return nil, p.c, false, nil
}

// decodeGSSInteg reads the (length, seq_num) pair of rpc_gss_integ_data and
// returns a cursor bounded to the procedure arguments or results.
func (p *pass) decodeGSSInteg(dir core.MsgType) (*core.GSSData, *Cursor, bool, error) {
	start := p.c.Offset()
	f, err := p.c.ReadFixed(gssIntegLayout)
	if err != nil {
		return nil, p.c, true, p.diagnose("gss_data", err)
	}
	gss := &core.GSSData{
		Direction: dir,
		Procedure: core.GSSProcData,
		Length:    uint32(f.Uint(0)),
		SeqNum:    uint32(f.Uint(1)),
	}
	if gss.Length < 4 {
		p.c.Rewind(start)
		return nil, p.c, true, p.diagnose("gss_data", fmt.Errorf("%w: databody length %d", core.ErrMalformed, gss.Length))
	}

	// The capture may end inside the databody; the program decoder then
	// sees what is there and reports the truncation itself.
	n := min(int(gss.Length)-4, p.c.Remaining())
	body, _ := p.c.Sub(n)
	if pad := padLen(gss.Length); pad <= p.c.Remaining() {
		_, _ = p.c.Bytes(pad)
	}
	return gss, body, false, nil
}

func (p *pass) decodeGSSInitCall(proc core.GSSProc) (*core.GSSData, error) {
	token, err := p.c.Opaque()
	if err != nil {
		return nil, err
	}
	return &core.GSSData{
		Direction: core.MsgCall,
		Procedure: proc,
		Token:     token,
		Mechanism: mechanismOf(token),
	}, nil
}

func (p *pass) decodeGSSInitReply(proc core.GSSProc) (*core.GSSData, error) {
	start := p.c.Offset()
	handle, err := p.c.Opaque()
	if err != nil {
		return nil, err
	}
	f, err := p.c.ReadFixed(gssInitResLayout)
	if err != nil {
		p.c.Rewind(start)
		return nil, err
	}
	token, err := p.c.Opaque()
	if err != nil {
		p.c.Rewind(start)
		return nil, err
	}
	return &core.GSSData{
		Direction: core.MsgReply,
		Procedure: proc,
		Context:   handle,
		Major:     uint32(f.Uint(0)),
		Minor:     uint32(f.Uint(1)),
		SeqWindow: uint32(f.Uint(2)),
		Token:     token,
		Mechanism: mechanismOf(token),
	}, nil
}

// decodeGSSChecksum reads the checksum token that follows an integrity
// protected payload and exposes its MIC header when it is a krb5 MIC.
func (p *pass) decodeGSSChecksum(dir core.MsgType) (*core.GSSChecksum, error) {
	if p.c.Remaining() < gssMinBytes {
		return nil, nil
	}
	token, err := p.c.Opaque()
	if err != nil {
		return nil, p.diagnose("gss_checksum", err)
	}
	sum := &core.GSSChecksum{Direction: dir, Token: token}

	// Replies are signed by the acceptor.
	var mic gssapi.MICToken
	if err := mic.Unmarshal(token, dir == core.MsgReply); err == nil {
		sum.MIC = &core.MICHeader{Flags: mic.Flags, SndSeqNum: mic.SndSeqNum, Checksum: mic.Checksum}
	}
	return sum, nil
}

// mechanismOf returns the mechanism of an RFC 2743 initial context token:
// the name of a known mechanism, the dotted OID otherwise, or "" when the
// token has no such framing.
func mechanismOf(token []byte) string {
	var outer asn1.RawValue
	if _, err := asn1.Unmarshal(token, &outer); err != nil {
		return ""
	}
	if outer.Class != asn1.ClassApplication || outer.Tag != 0 || !outer.IsCompound {
		return ""
	}
	var oid asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(outer.Bytes, &oid); err != nil {
		return ""
	}
	for _, name := range knownMechanisms {
		if oid.Equal(name.OID()) {
			return string(name)
		}
	}
	return oid.String()
}

func padLen(n uint32) int {
	return int((4 - n%4) % 4)
}
