package listener

import (
	"net"

	"github.com/alxayo/streamcast/internal/refbuf"
	"github.com/alxayo/streamcast/internal/source"
)

// oggListenerState tracks a listener's progress through a pending header
// chain before it may begin reading the data refbuf it attached to.
type oggListenerState struct {
	headerCursor *refbuf.Refbuf
	headerPos    int
}

// OggAdapter emits a data refbuf's associated header chain before its own
// bytes, the first time a listener attaches to a refbuf carrying one (spec
// §4.E: "hand the listener's codec-adapter the current associated header
// list so headers are written first").
type OggAdapter struct{}

func (OggAdapter) AttachListener(l *source.Listener) {
	if l.CurRefbuf == nil || l.CurRefbuf.Associated == nil {
		l.AdapterState = nil
		return
	}
	chain := l.CurRefbuf.Associated
	chain.Retain() // the listener's own walk through the chain holds a reference
	l.AdapterState = &oggListenerState{headerCursor: chain}
}

func (OggAdapter) DetachListener(l *source.Listener) {
	if st, ok := l.AdapterState.(*oggListenerState); ok && st != nil {
		st.headerCursor.Release()
	}
	l.AdapterState = nil
}

func (OggAdapter) WriteOneChunk(l *source.Listener, conn net.Conn) (int, error) {
	if st, ok := l.AdapterState.(*oggListenerState); ok && st != nil && st.headerCursor != nil {
		n, err := writeNonBlocking(conn, st.headerCursor.Data[st.headerPos:])
		if err != nil {
			return n, err
		}
		st.headerPos += n
		if st.headerPos == st.headerCursor.Len() {
			old := st.headerCursor
			next := old.Next
			if next != nil {
				next.Retain()
			}
			st.headerCursor = next
			st.headerPos = 0
			old.Release()
		}
		return n, nil
	}
	if l.CurRefbuf == nil {
		return 0, nil
	}
	return writeNonBlocking(conn, l.CurRefbuf.Data[l.Pos:])
}
