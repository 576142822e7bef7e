package source

import (
	"net"

	"github.com/alxayo/streamcast/internal/refbuf"
)

// CodecAdapter is the per-format write strategy the listener loop drives
// (spec §4.E): attach, write one chunk, detach. It has no hook that runs
// when a new refbuf is queued. Dispatch is by concrete adapter value, not
// inheritance.
type CodecAdapter interface {
	// AttachListener is called once when a listener first attaches to a
	// burst point or is grafted after a migration; it may prime per-client
	// state (e.g. "has the Ogg header chain been sent").
	AttachListener(l *Listener)
	// WriteOneChunk performs exactly one non-blocking write syscall (or as
	// many as needed to emit one logical unit, e.g. a full Ogg page) and
	// returns the number of bytes consumed from the listener's current
	// position, and any write error.
	WriteOneChunk(l *Listener, conn net.Conn) (int, error)
	// DetachListener releases any per-client codec state.
	DetachListener(l *Listener)
}

// Listener is one record per downstream client (spec §3). While attached,
// CurRefbuf is either nil (newly attached, not yet grafted) or points to a
// refbuf reachable from the source queue or the listener's own retained
// header chain; the listener holds one strong reference to CurRefbuf.
type Listener struct {
	ID   ConnID
	Conn net.Conn

	CurRefbuf *refbuf.Refbuf
	Pos       int

	BytesSent int64
	Errored   bool

	Adapter CodecAdapter

	// IcyMetadata is true when the listener advertised Icy-MetaData: 1 and
	// the source format is MP3; the adapter interleaves metadata blocks.
	IcyMetadata bool
	IcyInterval int

	// AdapterState is private scratch space a CodecAdapter may use to track
	// per-listener progress (e.g. an Ogg listener's outstanding header-chain
	// cursor, or an ICY listener's bytes-until-next-metadata-block counter).
	AdapterState any
}

// NewListener constructs a listener bound to conn, ready to be placed in a
// Source's pending set.
func NewListener(conn net.Conn, adapter CodecAdapter) *Listener {
	return &Listener{
		ID:      NewConnID(),
		Conn:    conn,
		Adapter: adapter,
	}
}

// Attach grafts the listener onto rb at offset 0, retaining one reference.
// Used both for the initial burst-point attach and for re-grafting a
// listener moved by the move-clients protocol, which also attaches at the
// destination's burst point.
func (l *Listener) Attach(rb *refbuf.Refbuf) {
	rb.Retain()
	l.CurRefbuf = rb
	l.Pos = 0
	if l.Adapter != nil {
		l.Adapter.AttachListener(l)
	}
}

// ResetCursor releases the listener's current refbuf reference and clears
// its cursor, used by the move-clients protocol (spec §4.D step 3) so the
// listener re-grafts onto the destination's burst point on its next
// scheduling pass.
func (l *Listener) ResetCursor() {
	l.CurRefbuf.Release()
	l.CurRefbuf = nil
	l.Pos = 0
}

// Advance moves the cursor to the next refbuf in the chain, releasing the
// old reference and retaining the new one, once Pos has consumed the
// entirety of CurRefbuf.
func (l *Listener) Advance() {
	next := l.CurRefbuf.Next
	l.CurRefbuf.Release()
	l.CurRefbuf = next
	l.Pos = 0
	if l.CurRefbuf != nil {
		l.CurRefbuf.Retain()
	}
}

// Detach releases the listener's held reference and any adapter state; the
// caller (listener loop) is responsible for removing it from the Source's
// sets.
func (l *Listener) Detach() {
	l.CurRefbuf.Release()
	l.CurRefbuf = nil
	if l.Adapter != nil {
		l.Adapter.DetachListener(l)
	}
}
