package framer

import (
	"github.com/alxayo/streamcast/internal/bufpool"
	"github.com/alxayo/streamcast/internal/refbuf"
)

// textCodec forwards the entire stream as non-sync refbufs except the
// first, which is marked sync, per spec §4.B. There is no frame boundary
// concept for text/* content.
type textCodec struct {
	emittedFirst bool
}

func newTextCodec() *textCodec { return &textCodec{} }

func (c *textCodec) Info() FrameInfo { return FrameInfo{} }

func (c *textCodec) Push(data []byte, pool *bufpool.Pool) ([]*refbuf.Refbuf, error) {
	if len(data) == 0 {
		return nil, nil
	}
	rb := refbuf.New(len(data), pool)
	copy(rb.Data, data)
	rb.SyncPoint = !c.emittedFirst
	c.emittedFirst = true
	return []*refbuf.Refbuf{rb}, nil
}
