package decoder

import "firestige.xyz/pktt/internal/core"

// Correlator remembers outstanding RPC calls by transaction id so that a
// reply, which carries no program or flavor of its own, can be decoded with
// its call's context. It belongs to one Session and is not safe for
// concurrent use. Entries of calls that never see a reply stay until the
// session is dropped.
type Correlator struct {
	pending map[uint32]core.CallContext
}

func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[uint32]core.CallContext)}
}

// Insert records a call. A previous call with the same xid is replaced;
// clients recycle ids.
func (c *Correlator) Insert(ctx core.CallContext) {
	c.pending[ctx.XID] = ctx
}

// Take removes and returns the call recorded for xid.
func (c *Correlator) Take(xid uint32) (core.CallContext, bool) {
	ctx, ok := c.pending[xid]
	if ok {
		delete(c.pending, xid)
	}
	return ctx, ok
}

// Peek returns the call recorded for xid without removing it.
func (c *Correlator) Peek(xid uint32) (core.CallContext, bool) {
	ctx, ok := c.pending[xid]
	return ctx, ok
}

// Len returns the number of calls awaiting a reply.
func (c *Correlator) Len() int { return len(c.pending) }
