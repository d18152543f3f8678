package decoder

import (
	"errors"

	"firestige.xyz/pktt/internal/core"
)

var callItLayout = Layout{U32, U32, U32} // prog, vers, proc

// decodeApplication selects the program decoder for an RPC body. A nil
// layer means the program or procedure is not decoded and the body stays
// verbatim on the RPC layer. Only truncation is returned; a malformed body
// is a diagnostic.
func (p *pass) decodeApplication(c *Cursor, ctx *core.CallContext, dir core.MsgType) (core.Layer, error) {
	switch {
	case ctx.Program == core.ProgramPortmap && ctx.Version == core.PortmapVersion2:
		pm, err := decodePortmap(c, ctx.Procedure, dir)
		if errors.Is(err, core.ErrTruncated) {
			return nil, err
		}
		if err != nil {
			return nil, p.diagnose("portmap", err)
		}
		if pm == nil {
			return nil, nil
		}
		return pm, nil
	}
	return nil, nil
}

// decodePortmap decodes a portmap version 2 call or reply body. It returns
// nil for procedures it does not know. On failure the cursor is restored.
func decodePortmap(c *Cursor, proc uint32, dir core.MsgType) (*core.Portmap, error) {
	if proc > core.PortmapCallIt {
		return nil, nil
	}
	start := c.Offset()
	pm := &core.Portmap{Direction: dir, Procedure: proc}
	var err error
	if dir == core.MsgCall {
		err = decodePortmapArgs(c, pm)
	} else {
		err = decodePortmapResult(c, pm)
	}
	if err != nil {
		c.Rewind(start)
		return nil, err
	}
	return pm, nil
}

func decodePortmapArgs(c *Cursor, pm *core.Portmap) error {
	switch pm.Procedure {
	case core.PortmapSet, core.PortmapUnset, core.PortmapGetPort:
		var m core.PortmapMapping
		if err := c.Unmarshal(&m); err != nil {
			return err
		}
		pm.Mapping = &m
	case core.PortmapCallIt:
		f, err := c.ReadFixed(callItLayout)
		if err != nil {
			return err
		}
		args, err := c.Opaque()
		if err != nil {
			return err
		}
		pm.CallArgs = &core.PortmapCallArgs{
			Program:   uint32(f.Uint(0)),
			Version:   uint32(f.Uint(1)),
			Procedure: uint32(f.Uint(2)),
			Args:      args,
		}
	}
	return nil
}

func decodePortmapResult(c *Cursor, pm *core.Portmap) error {
	var err error
	switch pm.Procedure {
	case core.PortmapSet, core.PortmapUnset:
		pm.Result, err = c.Bool()
	case core.PortmapGetPort:
		pm.Port, err = c.Uint32()
	case core.PortmapDump:
		for {
			more, err := c.Bool()
			if err != nil {
				return err
			}
			if !more {
				break
			}
			var m core.PortmapMapping
			if err := c.Unmarshal(&m); err != nil {
				return err
			}
			pm.Mappings = append(pm.Mappings, m)
		}
	case core.PortmapCallIt:
		var port uint32
		if port, err = c.Uint32(); err != nil {
			return err
		}
		var result []byte
		if result, err = c.Opaque(); err != nil {
			return err
		}
		pm.CallResult = &core.PortmapCallResult{Port: port, Result: result}
	}
	return err
}
