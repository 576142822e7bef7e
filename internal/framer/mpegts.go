package framer

import (
	"github.com/alxayo/streamcast/internal/bufpool"
	streamerrors "github.com/alxayo/streamcast/internal/errors"
	"github.com/alxayo/streamcast/internal/refbuf"
)

const mpegtsSyncByte = 0x47

var mpegtsPacketSizes = [3]int{188, 204, 208}

// mpegtsCodec implements MPEG-TS framing per spec §4.B: 0x47 sync byte,
// packet length auto-detected among 188/204/208, every packet a sync-point.
type mpegtsCodec struct {
	carry      []byte
	skipped    int
	packetSize int
	info       FrameInfo
}

func newMPEGTSCodec() *mpegtsCodec { return &mpegtsCodec{} }

func (c *mpegtsCodec) Info() FrameInfo { return c.info }

func (c *mpegtsCodec) Push(data []byte, pool *bufpool.Pool) ([]*refbuf.Refbuf, error) {
	c.carry = append(c.carry, data...)
	var out []*refbuf.Refbuf

	if c.packetSize == 0 {
		size, ok := detectPacketSize(c.carry)
		if !ok {
			if len(c.carry) > MaxDesyncBytes {
				skipped := len(c.carry)
				c.carry = nil
				c.skipped += skipped
				return out, streamerrors.NewFramerDesync("mpegts.sync", c.skipped, errMPEGTSNoSync)
			}
			return out, nil
		}
		c.packetSize = size
	}

	for len(c.carry) >= c.packetSize {
		if c.carry[0] != mpegtsSyncByte {
			// lost sync: slide forward one byte looking for the pattern again.
			c.skipped++
			if c.skipped > MaxDesyncBytes {
				skipped := c.skipped
				c.carry = nil
				c.packetSize = 0
				return out, streamerrors.NewFramerDesync("mpegts.sync", skipped, errMPEGTSNoSync)
			}
			c.carry = c.carry[1:]
			continue
		}
		c.skipped = 0
		rb := refbuf.New(c.packetSize, pool)
		copy(rb.Data, c.carry[:c.packetSize])
		rb.SyncPoint = true
		out = append(out, rb)
		c.carry = c.carry[c.packetSize:]
	}
	return out, nil
}

var errMPEGTSNoSync = mpegtsNoSyncErr{}

type mpegtsNoSyncErr struct{}

func (mpegtsNoSyncErr) Error() string { return "mpegts: no 0x47 sync pattern found" }

// detectPacketSize finds the packet size among 188/204/208 for which three
// consecutive sync bytes (0x47) appear at that stride, starting at offset 0.
func detectPacketSize(buf []byte) (int, bool) {
	for _, size := range mpegtsPacketSizes {
		need := size * 3
		if len(buf) < need {
			continue
		}
		if buf[0] == mpegtsSyncByte && buf[size] == mpegtsSyncByte && buf[2*size] == mpegtsSyncByte {
			return size, true
		}
	}
	return 0, false
}
