package listener

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/alxayo/streamcast/internal/errors"
	"github.com/alxayo/streamcast/internal/source"
)

// pollTimeoutNormal and pollTimeoutShort are the producer-socket read
// deadlines the loop alternates between: 250ms ordinarily, or 0ms on the
// iteration following a write pass that hit its per-listener budget (spec
// SUPPLEMENTED FEATURES: short_delay), so a backlogged listener set gets
// drained again without waiting a full poll period.
const (
	pollTimeoutNormal = 250 * time.Millisecond
	pollTimeoutShort  = 0
)

// maxBytesPerListenerPerIteration and maxWritesPerListenerPerIteration bound
// how much work one listener may receive per scheduler pass (spec §4.E /
// §5: "each listener's per-iteration write is capped, e.g. roughly 20000
// bytes or 10 buffer hops, whichever comes first"), so one slow client never
// starves the rest of the set.
const (
	maxBytesPerListenerPerIteration = 20000
	maxWritesPerListenerPerIteration = 10
)

// readChunkSize is the size of the buffer used to poll the producer socket.
const readChunkSize = 65536

// MountResolver is the subset of the mount registry the loop needs to carry
// out a fallback migration once its Source stops running (spec §4.D). A
// standalone Loop (e.g. in tests) may leave this nil; DRAINING sources with
// no resolver simply evict every listener without a destination.
type MountResolver interface {
	// ResolveFallback returns the Source currently reachable by following
	// mount's configured fallback chain, or false if none applies.
	ResolveFallback(mount string) (*source.Source, bool)
	// MoveClients grafts every listener of from onto to under the
	// move-clients lock ordering (spec §4.D).
	MoveClients(from, to *source.Source)
}

// DumpSink receives a copy of every framed refbuf appended to the queue,
// for mounts configured with a dump file/blob destination. Implementations
// must not block the scheduler; a slow sink should buffer internally.
type DumpSink interface {
	Write(mount string, p []byte)
}

// StatsSink receives point-in-time key/value publications (spec §6:
// listener counts, current song metadata). The loop publishes the listener
// count after every iteration, whether or not it changed.
type StatsSink interface {
	Publish(mount, key, value string)
}

// Loop is the per-Source cooperative scheduler: one iteration reads from
// the producer, frames and queues the bytes, then walks the listener set
// performing bounded non-blocking writes (spec §4.E).
type Loop struct {
	Src      *source.Source
	Resolver MountResolver
	Dump     DumpSink
	Stats    StatsSink
	Log      *slog.Logger

	readBuf []byte
}

// NewLoop constructs a scheduler for src. resolver, dump, and stats may be
// nil; log defaults to slog.Default() if nil.
func NewLoop(src *source.Source, resolver MountResolver, dump DumpSink, stats StatsSink, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		Src:      src,
		Resolver: resolver,
		Dump:     dump,
		Stats:    stats,
		Log:      log,
		readBuf:  make([]byte, readChunkSize),
	}
}

// Run drives iterations until the Source stops running or ctx is canceled,
// then performs the drain/migration sequence once.
func (lp *Loop) Run(ctx context.Context) {
	for lp.Src.Running() {
		select {
		case <-ctx.Done():
			lp.Src.BeginDraining()
		default:
		}
		if err := lp.iteration(); err != nil {
			if errors.IsSourceFatal(err) {
				lp.Log.Warn("source ended", "mount", lp.Src.Mount, "err", err)
				lp.Src.BeginDraining()
				break
			}
			lp.Log.Debug("iteration error", "mount", lp.Src.Mount, "err", err)
		}
	}
	lp.drain()
}

// iteration performs exactly one scheduler pass: poll the producer, frame
// and queue what was read, then service the listener set.
func (lp *Loop) iteration() error {
	if err := lp.pollProducer(); err != nil {
		return err
	}
	if lp.Src.TimedOut() {
		return errors.NewSourceFatal("producer.timeout", nil)
	}

	q := lp.Src.Queue
	deletionExpected := q.OverLimit(lp.Src.Cfg.QueueSizeLimit)

	lp.Src.ListenerMu.Lock()
	lp.admitPending()
	budgetExceeded := lp.serviceListeners(deletionExpected)
	lp.Src.SetListenerCount(len(lp.Src.Listeners))
	lp.Src.ListenerMu.Unlock()

	if budgetExceeded {
		lp.Src.SetShortDelay()
	}
	if lp.Stats != nil {
		lp.Stats.Publish(lp.Src.Mount, "listeners", strconv.Itoa(lp.Src.ListenerCount()))
	}

	q.Trim()
	return nil
}

func (lp *Loop) pollProducer() error {
	conn := lp.Src.ProducerConn
	if conn == nil {
		return nil
	}
	timeout := pollTimeoutNormal
	if lp.Src.ShortDelay() {
		timeout = pollTimeoutShort
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := conn.Read(lp.readBuf)
	if n > 0 {
		lp.Src.TouchLastRead()
		if err := lp.frameAndQueue(lp.readBuf[:n]); err != nil {
			return err
		}
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		return errors.NewSourceFatal("producer.read", err)
	}
	return nil
}

func (lp *Loop) frameAndQueue(data []byte) error {
	frames, err := lp.Src.Framer.Push(data)
	if err != nil {
		if errors.IsFramerDesync(err) {
			return errors.NewSourceFatal("framer.desync", err)
		}
		return err
	}
	for _, rb := range frames {
		lp.Src.Queue.Append(rb)
		if lp.Dump != nil {
			lp.Dump.Write(lp.Src.Mount, rb.Data)
		}
		rb.Release() // queue now holds the only strong reference from Append's Retain
	}
	return nil
}

// admitPending promotes queued-but-not-yet-serviced listeners into the
// active set up to Cfg.MaxListeners (0 meaning unlimited). Called with
// ListenerMu held.
func (lp *Loop) admitPending() {
	if len(lp.Src.Pending) == 0 {
		return
	}
	limit := lp.Src.Cfg.MaxListeners
	for id, l := range lp.Src.Pending {
		if limit > 0 && len(lp.Src.Listeners) >= limit {
			break
		}
		delete(lp.Src.Pending, id)
		lp.Src.Listeners[id] = l
	}
}

// serviceListeners walks the active listener set performing bounded writes,
// attaching fresh listeners at the current burst point, evicting errored or
// lagged ones, and advancing cursors. Called with ListenerMu held. Returns
// true if any listener's write was capped by the per-iteration budget
// (signalling the next poll should use the short delay).
func (lp *Loop) serviceListeners(deletionExpected bool) bool {
	q := lp.Src.Queue
	budgetExceeded := false

	for id, l := range lp.Src.Listeners {
		if l.CurRefbuf == nil {
			bp := q.BurstPoint()
			if bp == nil {
				continue
			}
			l.Attach(bp)
		}

		capped, err := lp.writeListener(l)
		if err != nil {
			l.Errored = true
		}
		if capped {
			budgetExceeded = true
		}
		if l.Errored {
			l.Detach()
			delete(lp.Src.Listeners, id)
			continue
		}

		if deletionExpected && l.CurRefbuf == q.Head() {
			l.Detach()
			delete(lp.Src.Listeners, id)
		}
	}
	return budgetExceeded
}

// writeListener performs up to maxWritesPerListenerPerIteration non-blocking
// writes (each one refbuf-chunk) for l, stopping early on a transient error,
// a fatal error, or the byte budget. Returns whether the budget capped
// further progress this iteration.
func (lp *Loop) writeListener(l *source.Listener) (capped bool, err error) {
	sent := 0
	for i := 0; i < maxWritesPerListenerPerIteration; i++ {
		if l.CurRefbuf == nil {
			return false, nil
		}
		n, werr := l.Adapter.WriteOneChunk(l, l.Conn)
		sent += n
		l.BytesSent += int64(n)
		if werr != nil {
			if errors.IsTransient(werr) {
				return false, nil
			}
			return false, werr
		}
		l.Pos += n
		if l.CurRefbuf != nil && l.Pos >= l.CurRefbuf.Len() {
			l.Advance()
		}
		if sent >= maxBytesPerListenerPerIteration {
			return true, nil
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

// drain performs the move-clients migration (spec §4.D) once a Source
// leaves RUNNING: every listener is grafted onto the fallback mount's
// current source if one resolves, otherwise evicted outright.
func (lp *Loop) drain() {
	lp.Src.ListenerMu.Lock()
	for id, l := range lp.Src.Pending {
		delete(lp.Src.Pending, id)
		lp.Src.Listeners[id] = l
	}
	hasListeners := len(lp.Src.Listeners) > 0
	lp.Src.ListenerMu.Unlock()

	if hasListeners && lp.Resolver != nil {
		if dst, ok := lp.Resolver.ResolveFallback(lp.Src.Mount); ok && dst != nil {
			lp.Resolver.MoveClients(lp.Src, dst)
		}
	}

	lp.Src.ListenerMu.Lock()
	for id, l := range lp.Src.Listeners {
		l.Detach()
		delete(lp.Src.Listeners, id)
	}
	lp.Src.ListenerMu.Unlock()

	if lp.Src.Queue != nil {
		lp.Src.Queue.Reset()
	}
	lp.Src.Terminate(false)
}
