package framer

import (
	"github.com/alxayo/streamcast/internal/bufpool"
	streamerrors "github.com/alxayo/streamcast/internal/errors"
	"github.com/alxayo/streamcast/internal/refbuf"
)

// mp3SyncValidateFrames is how many consecutive frame headers must agree
// before the codec accepts a sync position, per spec §4.B ("N configurable,
// default 4").
const mp3SyncValidateFrames = 4

var mp3BitrateTableV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
var mp3SampleRateTableV1 = [4]int{44100, 48000, 32000, 0}

// mp3Codec implements byte-level MPEG audio frame sync per the standard
// 4-byte frame header (spec §4.B: "audio/mpeg (MP3): byte-level sync via
// the standard frame header").
type mp3Codec struct {
	carry      []byte
	skipped    int
	synced     bool
	info       FrameInfo
}

func newMP3Codec() *mp3Codec { return &mp3Codec{} }

func (c *mp3Codec) Info() FrameInfo { return c.info }

func (c *mp3Codec) Push(data []byte, pool *bufpool.Pool) ([]*refbuf.Refbuf, error) {
	c.carry = append(c.carry, data...)
	var out []*refbuf.Refbuf

	for {
		if len(c.carry) >= 4 {
			if _, ok := parseMP3Header(c.carry); !ok && c.skipToNextSync() {
				continue
			}
		}

		frameLen, hdr, ok := c.findFrame(c.carry)
		if !ok {
			if len(c.carry) > MaxDesyncBytes {
				skipped := len(c.carry)
				c.carry = nil
				c.skipped += skipped
				return out, streamerrors.NewFramerDesync("mp3.sync", c.skipped, errMP3NoSync)
			}
			return out, nil
		}
		c.skipped = 0
		c.applyHeader(hdr)

		rb := refbuf.New(frameLen, pool)
		copy(rb.Data, c.carry[:frameLen])
		rb.SyncPoint = true
		out = append(out, rb)

		c.carry = c.carry[frameLen:]
	}
}

// findFrame looks for a valid frame header at offset 0 of buf and returns
// the frame length (header-declared) and decoded header fields. It requires
// mp3SyncValidateFrames consecutive agreeing headers the first time sync is
// established, then trusts subsequent single-frame sync (the standard
// encoder/decoder contract).
func (c *mp3Codec) findFrame(buf []byte) (int, mp3Header, bool) {
	if len(buf) < 4 {
		return 0, mp3Header{}, false
	}
	hdr, ok := parseMP3Header(buf)
	if !ok {
		return 0, mp3Header{}, false
	}

	if !c.synced {
		offset := 0
		need := mp3SyncValidateFrames
		for i := 0; i < need; i++ {
			if offset+4 > len(buf) {
				return 0, mp3Header{}, false
			}
			h, ok := parseMP3Header(buf[offset:])
			if !ok || h.sampleRate != hdr.sampleRate {
				return 0, mp3Header{}, false
			}
			if offset+h.frameLen > len(buf) && i < need-1 {
				return 0, mp3Header{}, false
			}
			offset += h.frameLen
		}
		c.synced = true
	}

	if len(buf) < hdr.frameLen {
		return 0, mp3Header{}, false
	}
	return hdr.frameLen, hdr, true
}

// skipToNextSync scans carry starting at offset 1 for the next byte position
// carrying a structurally valid frame header, discarding the garbage before
// it (spec §4.B / package doc: "skip bytes until it re-syncs"). Returns
// false if no candidate position is present among the bytes buffered so
// far — the caller then waits for more data, or escalates once the desync
// bound is crossed.
func (c *mp3Codec) skipToNextSync() bool {
	for i := 1; i+4 <= len(c.carry); i++ {
		if _, ok := parseMP3Header(c.carry[i:]); ok {
			c.skipped += i
			c.carry = c.carry[i:]
			c.synced = false
			return true
		}
	}
	return false
}

func (c *mp3Codec) applyHeader(h mp3Header) {
	c.info.SampleRate = h.sampleRate
	c.info.BitrateBps = h.bitrateKbps * 1000
	c.info.Channels = h.channels
}

type mp3Header struct {
	frameLen    int
	sampleRate  int
	bitrateKbps int
	channels    int
}

var errMP3NoSync = mp3NoSyncErr{}

type mp3NoSyncErr struct{}

func (mp3NoSyncErr) Error() string { return "mp3: no frame sync pattern found" }

// parseMP3Header decodes an MPEG-1 Layer III frame header (the common
// streaming case). Other versions/layers are rejected rather than
// mis-decoded; the framer skips forward byte-by-byte until a recognized
// header reappears.
func parseMP3Header(buf []byte) (mp3Header, bool) {
	if len(buf) < 4 {
		return mp3Header{}, false
	}
	if buf[0] != 0xFF || buf[1]&0xE0 != 0xE0 {
		return mp3Header{}, false
	}
	versionBits := (buf[1] >> 3) & 0x03
	layerBits := (buf[1] >> 1) & 0x03
	if versionBits != 0x03 || layerBits != 0x01 { // MPEG-1, Layer III
		return mp3Header{}, false
	}
	bitrateIdx := (buf[2] >> 4) & 0x0F
	sampleIdx := (buf[2] >> 2) & 0x03
	padding := (buf[2] >> 1) & 0x01
	channelMode := (buf[3] >> 6) & 0x03

	if bitrateIdx == 0 || bitrateIdx == 0x0F || sampleIdx == 0x03 {
		return mp3Header{}, false
	}
	bitrateKbps := mp3BitrateTableV1L3[bitrateIdx]
	sampleRate := mp3SampleRateTableV1[sampleIdx]
	if bitrateKbps == 0 || sampleRate == 0 {
		return mp3Header{}, false
	}

	frameLen := (144*bitrateKbps*1000)/sampleRate + int(padding)
	if frameLen < 4 {
		return mp3Header{}, false
	}
	channels := 2
	if channelMode == 3 {
		channels = 1
	}
	return mp3Header{
		frameLen:    frameLen,
		sampleRate:  sampleRate,
		bitrateKbps: bitrateKbps,
		channels:    channels,
	}, true
}
