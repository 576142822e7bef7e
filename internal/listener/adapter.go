// Package listener implements the per-source scheduler (spec §4.E): one
// cooperative task per running Source that polls the producer, hands bytes
// to the Framer, appends to the queue, and walks the listener set writing
// non-blocking with a bounded per-iteration budget. It also implements the
// codec adapters (source.CodecAdapter: attach, write one chunk, detach)
// dispatched by variant: Passthrough, Ogg-with-headers, MP3-with-ICY.
// FLV-wrapped sources use Passthrough, since their framer already emits FLV
// tags; adapters have no hook that runs when a new refbuf is queued.
package listener

import (
	"io"
	"net"
	"time"

	"github.com/alxayo/streamcast/internal/errors"
	"github.com/alxayo/streamcast/internal/source"
)

// writeTimeout is the deadline used to emulate a non-blocking socket write:
// a net.Conn has no EAGAIN-equivalent API, so a very short write deadline
// plays the same role (a timeout error classifies as transient, never as
// listener-fatal).
const writeTimeout = time.Millisecond

// classifyWriteErr maps a net.Conn write error to the streaming core's
// error taxonomy (spec §7): a deadline/timeout is transient (retry next
// iteration); anything else is listener-fatal.
func classifyWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF {
		return errors.NewListenerFatal(op, err)
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errors.NewTransientIO(op, err)
	}
	return errors.NewListenerFatal(op, err)
}

// writeNonBlocking writes as much of buf as the socket accepts within
// writeTimeout, returning bytes written and a classified error.
func writeNonBlocking(conn net.Conn, buf []byte) (int, error) {
	if conn == nil || len(buf) == 0 {
		return 0, nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	n, err := conn.Write(buf)
	return n, classifyWriteErr("listener.write", err)
}

// PassthroughAdapter writes refbuf bytes verbatim. Used by MPEG-TS, WebM,
// text, and FLV-wrapped sources, none of which need per-client
// interleaving beyond what the framer already produced.
type PassthroughAdapter struct{}

func (PassthroughAdapter) AttachListener(*source.Listener) {}
func (PassthroughAdapter) DetachListener(*source.Listener) {}

func (PassthroughAdapter) WriteOneChunk(l *source.Listener, conn net.Conn) (int, error) {
	if l.CurRefbuf == nil {
		return 0, nil
	}
	return writeNonBlocking(conn, l.CurRefbuf.Data[l.Pos:])
}
