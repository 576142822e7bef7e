package listener

import (
	"net"

	"github.com/alxayo/streamcast/internal/source"
)

// icyMetaBlockMax is the largest encodable ICY metadata block: 255 length
// units of 16 bytes each, per the Shoutcast/Icecast in-band metadata
// convention.
const icyMetaBlockMax = 255 * 16

// icyListenerState tracks bytes remaining until the next metadata block is
// due, and the unsent remainder of a metadata block whose write was cut
// short (its "now playing" string is latched when the block is built).
type icyListenerState struct {
	bytesUntilMeta int
	pendingMeta    []byte
}

// MP3ICYAdapter interleaves Shoutcast-style in-band metadata blocks into an
// MP3 listener's stream at a fixed byte interval (Icy-MetaData is
// negotiated per listener at admission time). A
// listener that did not request metadata falls through to plain passthrough.
type MP3ICYAdapter struct {
	// MetaString returns the current metadata block payload (already built
	// as "StreamTitle='...';") for the owning source; read fresh on every
	// emitted block so title changes show up without adapter churn.
	MetaString func() string
}

func (a MP3ICYAdapter) AttachListener(l *source.Listener) {
	if !l.IcyMetadata {
		l.AdapterState = nil
		return
	}
	interval := l.IcyInterval
	if interval <= 0 {
		interval = 16000
	}
	l.AdapterState = &icyListenerState{bytesUntilMeta: interval}
}

func (a MP3ICYAdapter) DetachListener(l *source.Listener) {
	l.AdapterState = nil
}

func (a MP3ICYAdapter) WriteOneChunk(l *source.Listener, conn net.Conn) (int, error) {
	if l.CurRefbuf == nil {
		return 0, nil
	}
	st, ok := l.AdapterState.(*icyListenerState)
	if !ok || st == nil {
		return writeNonBlocking(conn, l.CurRefbuf.Data[l.Pos:])
	}

	avail := l.CurRefbuf.Data[l.Pos:]
	if st.bytesUntilMeta > 0 {
		chunk := avail
		if len(chunk) > st.bytesUntilMeta {
			chunk = chunk[:st.bytesUntilMeta]
		}
		n, err := writeNonBlocking(conn, chunk)
		st.bytesUntilMeta -= n
		return n, err
	}

	block := st.pendingMeta
	if block == nil {
		block = a.buildMetaBlock()
	}
	n, err := writeNonBlocking(conn, block)
	if n < len(block) {
		// Partial metadata-block write: report zero audio bytes consumed
		// this iteration and retry the remainder next pass rather than
		// interleave audio mid-block.
		st.pendingMeta = block[n:]
		return 0, err
	}
	st.pendingMeta = nil
	if err != nil {
		return 0, err
	}

	interval := l.IcyInterval
	if interval <= 0 {
		interval = 16000
	}
	st.bytesUntilMeta = interval
	return 0, nil
}

func (a MP3ICYAdapter) buildMetaBlock() []byte {
	var payload string
	if a.MetaString != nil {
		payload = a.MetaString()
	}
	if len(payload) > icyMetaBlockMax {
		payload = payload[:icyMetaBlockMax]
	}
	units := (len(payload) + 15) / 16
	block := make([]byte, 1+units*16)
	block[0] = byte(units)
	copy(block[1:], payload)
	return block
}
