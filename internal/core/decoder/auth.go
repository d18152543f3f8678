package decoder

import (
	"fmt"

	"firestige.xyz/pktt/internal/core"
)

// maxAuthBody is the largest credential or verifier body RFC 5531 allows.
const maxAuthBody = 400

// decodeOpaqueAuth reads an opaque_auth (flavor, body).
func (p *pass) decodeOpaqueAuth() (core.AuthFlavor, []byte, error) {
	start := p.c.Offset()
	flavor, err := p.c.Uint32()
	if err != nil {
		return 0, nil, err
	}
	body, err := p.c.Opaque()
	if err != nil {
		p.c.Rewind(start)
		return 0, nil, err
	}
	if len(body) > maxAuthBody {
		p.c.Rewind(start)
		return 0, nil, fmt.Errorf("%w: auth body of %d bytes", core.ErrMalformed, len(body))
	}
	return core.AuthFlavor(flavor), body, nil
}

// decodeCredential reads a call credential and interprets the body of the
// flavors it knows. A body that does not parse is kept raw and reported as
// a diagnostic.
func (p *pass) decodeCredential() (core.Credential, error) {
	flavor, body, err := p.decodeOpaqueAuth()
	if err != nil {
		return core.Credential{}, err
	}
	cred := core.Credential{Flavor: flavor, Body: body}
	switch flavor {
	case core.AuthSys:
		sys, err := parseAuthSys(body)
		if err != nil {
			return cred, p.diagnose("auth_sys", err)
		}
		cred.Sys = sys
	case core.RPCSecGSS:
		gss, err := parseGSSCredential(body)
		if err != nil {
			return cred, p.diagnose("gss_cred", err)
		}
		cred.GSS = gss
	}
	return cred, nil
}

func parseAuthSys(body []byte) (*core.AuthSysParams, error) {
	c := NewCursor(body)
	stamp, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	machine, err := c.XDRString()
	if err != nil {
		return nil, err
	}
	ids, err := c.ReadFixed(Layout{U32, U32})
	if err != nil {
		return nil, err
	}
	gids, err := c.Uint32Array()
	if err != nil {
		return nil, err
	}
	return &core.AuthSysParams{
		Stamp:   stamp,
		Machine: machine,
		UID:     uint32(ids.Uint(0)),
		GID:     uint32(ids.Uint(1)),
		GIDs:    gids,
	}, nil
}

func parseGSSCredential(body []byte) (*core.GSSCredential, error) {
	c := NewCursor(body)
	f, err := c.ReadFixed(Layout{U32, U32, U32, U32})
	if err != nil {
		return nil, err
	}
	handle, err := c.Opaque()
	if err != nil {
		return nil, err
	}
	return &core.GSSCredential{
		Version:   uint32(f.Uint(0)),
		Procedure: core.GSSProc(f.Uint(1)),
		Sequence:  uint32(f.Uint(2)),
		Service:   core.GSSService(f.Uint(3)),
		Context:   handle,
	}, nil
}
