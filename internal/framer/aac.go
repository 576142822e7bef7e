package framer

import (
	"github.com/alxayo/streamcast/internal/bufpool"
	streamerrors "github.com/alxayo/streamcast/internal/errors"
	"github.com/alxayo/streamcast/internal/refbuf"
)

const aacSyncValidateFrames = 4

var aacSampleRateTable = [16]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350, 0, 0, 0,
}

// aacCodec implements ADTS frame sync for audio/aac, audio/aacp per spec
// §4.B (same byte-level sync discipline as MP3, different header layout).
type aacCodec struct {
	carry   []byte
	skipped int
	synced  bool
	info    FrameInfo
}

func newAACCodec() *aacCodec { return &aacCodec{} }

func (c *aacCodec) Info() FrameInfo { return c.info }

func (c *aacCodec) Push(data []byte, pool *bufpool.Pool) ([]*refbuf.Refbuf, error) {
	c.carry = append(c.carry, data...)
	var out []*refbuf.Refbuf

	for {
		if len(c.carry) >= 7 {
			if _, ok := parseADTSHeader(c.carry); !ok && c.skipToNextSync() {
				continue
			}
		}

		frameLen, hdr, ok := c.findFrame(c.carry)
		if !ok {
			if len(c.carry) > MaxDesyncBytes {
				skipped := len(c.carry)
				c.carry = nil
				c.skipped += skipped
				return out, streamerrors.NewFramerDesync("aac.sync", c.skipped, errAACNoSync)
			}
			return out, nil
		}
		c.skipped = 0
		c.info.SampleRate = hdr.sampleRate
		c.info.Channels = hdr.channels

		rb := refbuf.New(frameLen, pool)
		copy(rb.Data, c.carry[:frameLen])
		rb.SyncPoint = true
		out = append(out, rb)

		c.carry = c.carry[frameLen:]
	}
}

type adtsHeader struct {
	frameLen   int
	sampleRate int
	channels   int
}

var errAACNoSync = aacNoSyncErr{}

type aacNoSyncErr struct{}

func (aacNoSyncErr) Error() string { return "aac: no ADTS sync pattern found" }

func (c *aacCodec) findFrame(buf []byte) (int, adtsHeader, bool) {
	if len(buf) < 7 {
		return 0, adtsHeader{}, false
	}
	hdr, ok := parseADTSHeader(buf)
	if !ok {
		return 0, adtsHeader{}, false
	}
	if !c.synced {
		offset := 0
		for i := 0; i < aacSyncValidateFrames; i++ {
			if offset+7 > len(buf) {
				return 0, adtsHeader{}, false
			}
			h, ok := parseADTSHeader(buf[offset:])
			if !ok || h.sampleRate != hdr.sampleRate {
				return 0, adtsHeader{}, false
			}
			if offset+h.frameLen > len(buf) && i < aacSyncValidateFrames-1 {
				return 0, adtsHeader{}, false
			}
			offset += h.frameLen
		}
		c.synced = true
	}
	if len(buf) < hdr.frameLen {
		return 0, adtsHeader{}, false
	}
	return hdr.frameLen, hdr, true
}

// skipToNextSync scans carry starting at offset 1 for the next byte position
// carrying a structurally valid ADTS header, discarding the garbage before
// it. Returns false if no candidate position is present among the bytes
// buffered so far.
func (c *aacCodec) skipToNextSync() bool {
	for i := 1; i+7 <= len(c.carry); i++ {
		if _, ok := parseADTSHeader(c.carry[i:]); ok {
			c.skipped += i
			c.carry = c.carry[i:]
			c.synced = false
			return true
		}
	}
	return false
}

func parseADTSHeader(buf []byte) (adtsHeader, bool) {
	if len(buf) < 7 {
		return adtsHeader{}, false
	}
	if buf[0] != 0xFF || buf[1]&0xF0 != 0xF0 {
		return adtsHeader{}, false
	}
	sampleIdx := (buf[2] >> 2) & 0x0F
	channelCfg := ((buf[2] & 0x01) << 2) | ((buf[3] >> 6) & 0x03)
	frameLen := (int(buf[3]&0x03) << 11) | (int(buf[4]) << 3) | (int(buf[5]) >> 5)

	sampleRate := aacSampleRateTable[sampleIdx]
	if sampleRate == 0 || frameLen < 7 {
		return adtsHeader{}, false
	}
	channels := int(channelCfg)
	if channels == 0 {
		channels = 2
	}
	return adtsHeader{frameLen: frameLen, sampleRate: sampleRate, channels: channels}, true
}
