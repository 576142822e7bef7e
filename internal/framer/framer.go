// Package framer implements the codec-aware framing layer: per
// producer-declared content-type, it segments an inbound byte stream into
// media frames aligned refbufs so that a newly attached listener can begin
// playback at a valid sync point. Partial frames are carried across Push
// calls in an internal buffer; malformed input causes the framer to skip
// bytes until it re-syncs, escalating to FramerDesyncError past a sanity
// bound.
package framer

import (
	"errors"

	"github.com/alxayo/streamcast/internal/bufpool"
	"github.com/alxayo/streamcast/internal/refbuf"
)

var errUnsupportedFLVInner = errors.New("framer: FLV wrapping only supports audio/mpeg and audio/aac(p) input")

// MaxDesyncBytes bounds how many bytes a framer may skip while hunting for
// a sync pattern before it gives up and reports desync (spec §4.B: "after a
// configured count of unrecoverable bytes (e.g., > 20000 bytes)").
const MaxDesyncBytes = 20000

// FrameInfo exposes the framer's current read-only understanding of the
// stream, updated as frames are decoded.
type FrameInfo struct {
	SampleRate int
	Channels   int
	BitrateBps int
}

// Framer consumes raw producer bytes and emits refbufs aligned to frame
// boundaries. A single Framer instance is owned by one Source; it is not
// safe for concurrent use.
type Framer struct {
	impl Codec
	pool *bufpool.Pool
}

// Codec is the per-format strategy a Framer dispatches to. Implementations
// buffer partial input internally and return fully framed refbufs.
type Codec interface {
	// Push consumes newly read bytes and returns zero or more refbufs ready
	// for the queue. Returns a FramerDesyncError (via internal/errors) if
	// the codec cannot recover sync within MaxDesyncBytes.
	Push(data []byte, pool *bufpool.Pool) ([]*refbuf.Refbuf, error)
	// Info returns the codec's current read-only stream parameters.
	Info() FrameInfo
}

// New builds a Framer for the given producer-declared content-type. An
// unrecognized content-type is an admission-time rejection, not a framer
// concern; callers should reject before constructing a Framer.
func New(contentType string, pool *bufpool.Pool) (*Framer, error) {
	impl, err := newCodec(contentType)
	if err != nil {
		return nil, err
	}
	return &Framer{impl: impl, pool: pool}, nil
}

// NewFLVWrapped builds a Framer that parses innerContentType (audio/mpeg or
// audio/aac/aacp, the only two FLV-derived sources spec §4.B names) and
// wraps each emitted frame in an FLV tag. The HTTP admission path builds
// framers from the producer's declared content-type only and never selects
// this constructor; it is used only by callers that request it directly.
func NewFLVWrapped(innerContentType string, pool *bufpool.Pool) (*Framer, error) {
	inner, err := newCodec(innerContentType)
	if err != nil {
		return nil, err
	}
	var soundFormat byte
	switch inner.(type) {
	case *mp3Codec:
		soundFormat = 2
	case *aacCodec:
		soundFormat = 10
	default:
		return nil, errUnsupportedFLVInner
	}
	return &Framer{impl: newFLVCodec(inner, soundFormat, 0), pool: pool}, nil
}

// Push hands data to the underlying codec implementation.
func (f *Framer) Push(data []byte) ([]*refbuf.Refbuf, error) {
	return f.impl.Push(data, f.pool)
}

// Info returns the current stream parameters as tracked by the codec.
func (f *Framer) Info() FrameInfo { return f.impl.Info() }

// FormatType mirrors the Source.format_type enum named in the data model.
type FormatType int

const (
	FormatUnknown FormatType = iota
	FormatOgg
	FormatMP3
	FormatAAC
	FormatWebM
	FormatMPEGTS
	FormatText
	FormatFLV
)

func (f FormatType) String() string {
	switch f {
	case FormatOgg:
		return "OGG"
	case FormatMP3:
		return "MP3"
	case FormatAAC:
		return "AAC"
	case FormatWebM:
		return "WEBM"
	case FormatMPEGTS:
		return "MPEG_TS"
	case FormatText:
		return "TEXT"
	case FormatFLV:
		return "FLV-derived"
	default:
		return "UNKNOWN"
	}
}
