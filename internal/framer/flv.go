package framer

import (
	"encoding/binary"

	"github.com/alxayo/streamcast/internal/bufpool"
	"github.com/alxayo/streamcast/internal/refbuf"
)

// flvHeader is the fixed 13-byte FLV file header (9-byte header + 4-byte
// PreviousTagSize0), audio-only (flags=0x04). Adapted from the FLV tag
// layout the teacher's recorder used for on-disk FLV files; here the same
// bytes are synthesized once per Source rather than written to a file.
var flvHeader = []byte{'F', 'L', 'V', 0x01, 0x04, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}

const flvAudioTagType = 0x08

// flvCodec wraps an inner MP3 or AAC codec, prepending an FLV file header
// to the first emission and wrapping every emitted audio frame in an FLV
// tag, per spec §4.B ("FLV container synthesized from MP3/AAC input").
type flvCodec struct {
	inner        Codec
	soundFormat  byte // FLV AudioTagHeader SoundFormat nibble
	headerSent   bool
	timestampMs  uint32
	msPerFrame   uint32
}

// newFLVCodec wraps inner, tagging frames with the given FLV SoundFormat
// (2 = MP3, 10 = AAC) and an approximate per-frame timestamp step.
func newFLVCodec(inner Codec, soundFormat byte, msPerFrame uint32) *flvCodec {
	if msPerFrame == 0 {
		msPerFrame = 26 // ~1152 samples @ 44.1kHz, a reasonable MP3 default
	}
	return &flvCodec{inner: inner, soundFormat: soundFormat, msPerFrame: msPerFrame}
}

func (c *flvCodec) Info() FrameInfo { return c.inner.Info() }

func (c *flvCodec) Push(data []byte, pool *bufpool.Pool) ([]*refbuf.Refbuf, error) {
	frames, err := c.inner.Push(data, pool)
	if len(frames) == 0 {
		return nil, err
	}

	out := make([]*refbuf.Refbuf, 0, len(frames)+1)
	if !c.headerSent {
		out = append(out, refbuf.NewFromBytes(append([]byte(nil), flvHeader...)))
		c.headerSent = true
	}

	for _, f := range frames {
		out = append(out, c.wrapTag(f))
		c.timestampMs += c.msPerFrame
	}
	return out, err
}

// wrapTag builds one FLV tag (11-byte tag header + AudioTagHeader byte +
// payload + 4-byte PreviousTagSize) around a single framed audio buffer,
// releasing the inner framer's refbuf once its bytes are copied in.
func (c *flvCodec) wrapTag(frame *refbuf.Refbuf) *refbuf.Refbuf {
	payload := frame.Data
	dataSize := len(payload) + 1 // +1 for the AudioTagHeader byte
	total := 11 + dataSize + 4

	rb := refbuf.NewFromBytes(make([]byte, total))
	buf := rb.Data

	buf[0] = flvAudioTagType
	buf[1] = byte(dataSize >> 16)
	buf[2] = byte(dataSize >> 8)
	buf[3] = byte(dataSize)
	buf[4] = byte(c.timestampMs >> 16)
	buf[5] = byte(c.timestampMs >> 8)
	buf[6] = byte(c.timestampMs)
	buf[7] = byte(c.timestampMs >> 24)
	// bytes 8-10: StreamID, always 0

	// AudioTagHeader: SoundFormat(4) | SoundRate(2)=3(44kHz) | SoundSize(1)=1(16-bit) | SoundType(1)=1(stereo)
	buf[11] = (c.soundFormat << 4) | 0x0F

	copy(buf[12:], payload)

	prevSize := uint32(11 + dataSize)
	binary.BigEndian.PutUint32(buf[total-4:], prevSize)

	rb.SyncPoint = true
	frame.Release()
	return rb
}
