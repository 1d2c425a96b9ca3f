package connector

import (
	"context"
	"io"

	"github.com/oneconcern/depot/pkg/transfer"
)

// progressReader reports every chunk read to the session listener.
//
// Reads fail as soon as the context is done, which aborts an active stream
// on cancellation or Close().
type progressReader struct {
	ctx context.Context
	r   io.Reader
	x   *execution
}

func (x *execution) progress(r io.Reader) io.Reader {
	return &progressReader{ctx: x.ctx, r: r, x: x}
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.x.transferred.Add(int64(n))
		if p.x.corrupted {
			return n, err
		}
		ev := p.x.event(transfer.EventProgressed)
		ev.Chunk = b[:n]
		if lerr := p.x.session.Listener.TransferProgressed(ev); lerr != nil {
			return n, lerr
		}
	}
	return n, err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(b []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(b)
}
