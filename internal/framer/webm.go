package framer

import (
	"github.com/alxayo/streamcast/internal/bufpool"
	streamerrors "github.com/alxayo/streamcast/internal/errors"
	"github.com/alxayo/streamcast/internal/refbuf"
)

// ebmlClusterID is the EBML element ID for a Cluster, the WebM framing
// boundary per spec §4.B ("emits refbufs that start at each Cluster
// boundary (sync-points)").
var ebmlClusterID = []byte{0x1F, 0x43, 0xB6, 0x75}

// webmCodec implements a minimal EBML element scan: everything before the
// first Cluster element is emitted as a single header refbuf; thereafter
// each Cluster start begins a new sync-point refbuf that runs until the
// next Cluster start (or end of available input).
type webmCodec struct {
	carry       []byte
	headerSent  bool
	skipped     int
	info        FrameInfo
}

func newWebMCodec() *webmCodec { return &webmCodec{} }

func (c *webmCodec) Info() FrameInfo { return c.info }

func (c *webmCodec) Push(data []byte, pool *bufpool.Pool) ([]*refbuf.Refbuf, error) {
	c.carry = append(c.carry, data...)
	var out []*refbuf.Refbuf

	if !c.headerSent {
		idx := indexOf(c.carry, ebmlClusterID)
		if idx < 0 {
			if len(c.carry) > MaxDesyncBytes {
				skipped := len(c.carry)
				c.carry = nil
				c.skipped += skipped
				return out, streamerrors.NewFramerDesync("webm.sync", c.skipped, errWebMNoCluster)
			}
			return out, nil
		}
		if idx > 0 {
			rb := refbuf.New(idx, pool)
			copy(rb.Data, c.carry[:idx])
			rb.SyncPoint = false
			out = append(out, rb)
			c.carry = c.carry[idx:]
		}
		c.headerSent = true
	}

	// Emit complete clusters: from this Cluster start to the next Cluster
	// start. The final, possibly incomplete, cluster stays in carry until
	// more data arrives or Push is called again.
	for {
		if len(c.carry) < len(ebmlClusterID) {
			return out, nil
		}
		next := indexOf(c.carry[len(ebmlClusterID):], ebmlClusterID)
		if next < 0 {
			return out, nil
		}
		end := next + len(ebmlClusterID)
		rb := refbuf.New(end, pool)
		copy(rb.Data, c.carry[:end])
		rb.SyncPoint = true
		out = append(out, rb)
		c.carry = c.carry[end:]
	}
}

var errWebMNoCluster = webmNoClusterErr{}

type webmNoClusterErr struct{}

func (webmNoClusterErr) Error() string { return "webm: no Cluster element found" }

func indexOf(haystack, needle []byte) int {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
