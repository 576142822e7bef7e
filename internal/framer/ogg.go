package framer

import (
	"encoding/binary"

	"github.com/alxayo/streamcast/internal/bufpool"
	streamerrors "github.com/alxayo/streamcast/internal/errors"
	"github.com/alxayo/streamcast/internal/refbuf"
)

const oggCapturePattern = "OggS"

// oggHeaderFlagBOS is the header_type_flag bit marking a beginning-of-stream
// page (the first page of each logical bitstream).
const oggHeaderFlagBOS = 0x02

// oggCodec implements Ogg page sync per spec §4.B: BOS pages are collected
// into a header chain, and every non-BOS page becomes a data refbuf
// referencing that chain via Associated. Only BOS pages join the chain;
// header packets carried on later pages (e.g. Vorbis comment and setup
// headers) are emitted as ordinary data pages. Theora/Kate use granulepos to mark
// key-frames; Vorbis/Opus mark every page a sync-point.
type oggCodec struct {
	carry   []byte
	skipped int

	collectingHeaders bool
	headerChainHead   *refbuf.Refbuf
	headerChainTail   *refbuf.Refbuf
	seenSerials       map[uint32]bool
	bosSerials        map[uint32]bool

	info FrameInfo

	// prevGranule tracks granulepos per serial for key-frame detection on
	// granulepos-bearing codecs (Theora/Kate); treated conservatively:
	// every page with a non-continuation granulepos change is a sync point.
	prevGranule map[uint32]int64
}

func newOggCodec() *oggCodec {
	return &oggCodec{
		collectingHeaders: true,
		seenSerials:       map[uint32]bool{},
		bosSerials:        map[uint32]bool{},
		prevGranule:       map[uint32]int64{},
	}
}

func (c *oggCodec) Info() FrameInfo { return c.info }

func (c *oggCodec) Push(data []byte, pool *bufpool.Pool) ([]*refbuf.Refbuf, error) {
	c.carry = append(c.carry, data...)
	var out []*refbuf.Refbuf

	for {
		if !c.hasCapturePatternAtHead() && c.skipToNextCapturePattern() {
			continue
		}

		page, total, ok := parseOggPage(c.carry)
		if !ok {
			if len(c.carry) > MaxDesyncBytes {
				skipped := len(c.carry)
				c.carry = nil
				c.skipped += skipped
				return out, streamerrors.NewFramerDesync("ogg.sync", c.skipped, errOggNoSync)
			}
			return out, nil
		}
		c.skipped = 0

		isBOS := page.headerType&oggHeaderFlagBOS != 0
		if isBOS {
			c.bosSerials[page.serial] = true
			c.appendHeaderPage(c.carry[:total], pool)
		} else {
			// The first non-BOS page closes header collection; it and every
			// later non-BOS page are data pages.
			c.collectingHeaders = false
			out = append(out, c.emitDataPage(page, c.carry[:total], pool))
		}

		c.carry = c.carry[total:]
	}
}

// hasCapturePatternAtHead reports whether carry begins with the "OggS"
// capture pattern (version byte aside, not yet a full-page check — just
// enough to tell a genuine page start from garbage).
func (c *oggCodec) hasCapturePatternAtHead() bool {
	return len(c.carry) >= 4 && string(c.carry[0:4]) == oggCapturePattern
}

// skipToNextCapturePattern scans carry starting at offset 1 for the next
// occurrence of "OggS", discarding the garbage before it (spec §4.B /
// package doc: "skip bytes until it re-syncs"). Returns false if no
// candidate position is present among the bytes buffered so far.
func (c *oggCodec) skipToNextCapturePattern() bool {
	for i := 1; i+4 <= len(c.carry); i++ {
		if string(c.carry[i:i+4]) == oggCapturePattern {
			c.skipped += i
			c.carry = c.carry[i:]
			return true
		}
	}
	return false
}

func (c *oggCodec) appendHeaderPage(raw []byte, pool *bufpool.Pool) {
	rb := refbuf.New(len(raw), pool)
	copy(rb.Data, raw)
	if c.headerChainHead == nil {
		c.headerChainHead = rb
		c.headerChainTail = rb
	} else {
		rb.Retain() // chain link reference, mirrors queue ownership semantics
		c.headerChainTail.Next = rb
		c.headerChainTail = rb
	}
}

func (c *oggCodec) emitDataPage(page oggPageHeader, raw []byte, pool *bufpool.Pool) *refbuf.Refbuf {
	rb := refbuf.New(len(raw), pool)
	copy(rb.Data, raw)
	if c.headerChainHead != nil {
		rb.Associate(c.headerChainHead)
	}
	rb.SyncPoint = c.isSyncPoint(page)
	return rb
}

// isSyncPoint approximates the granulepos keyframe rule: Vorbis/Opus pages
// (granulepos present and monotonically increasing every page) are always
// sync points; for codecs that advance granulepos only at key-frames
// (Theora/Kate), a page is a sync point only when granulepos changed from
// the previous page on that serial (spec §4.B). Without full codec
// identification from the header packets, the conservative rule "any
// granulepos change is a sync point" subsumes both cases.
func (c *oggCodec) isSyncPoint(page oggPageHeader) bool {
	prev, seen := c.prevGranule[page.serial]
	c.prevGranule[page.serial] = page.granulepos
	if !seen {
		return true
	}
	return page.granulepos != prev
}

type oggPageHeader struct {
	serial      uint32
	headerType  byte
	granulepos  int64
	pageSeqNum  uint32
}

var errOggNoSync = oggNoSyncErr{}

type oggNoSyncErr struct{}

func (oggNoSyncErr) Error() string { return "ogg: no OggS capture pattern found" }

// parseOggPage parses a single Ogg page at offset 0 of buf (capture
// pattern "OggS", version 0). Returns the decoded header and the total page
// length (header + segment table + payload); ok=false means either no sync
// pattern is present or the buffer does not yet contain a complete page.
func parseOggPage(buf []byte) (oggPageHeader, int, bool) {
	if len(buf) < 27 {
		return oggPageHeader{}, 0, false
	}
	if string(buf[0:4]) != oggCapturePattern {
		return oggPageHeader{}, 0, false
	}
	if buf[4] != 0 { // stream structure version
		return oggPageHeader{}, 0, false
	}
	headerType := buf[5]
	granulepos := int64(binary.LittleEndian.Uint64(buf[6:14]))
	serial := binary.LittleEndian.Uint32(buf[14:18])
	pageSeqNum := binary.LittleEndian.Uint32(buf[18:22])
	segCount := int(buf[26])
	headerLen := 27 + segCount
	if len(buf) < headerLen {
		return oggPageHeader{}, 0, false
	}
	payloadLen := 0
	for i := 0; i < segCount; i++ {
		payloadLen += int(buf[27+i])
	}
	total := headerLen + payloadLen
	if len(buf) < total {
		return oggPageHeader{}, 0, false
	}
	return oggPageHeader{
		serial:     serial,
		headerType: headerType,
		granulepos: granulepos,
		pageSeqNum: pageSeqNum,
	}, total, true
}
