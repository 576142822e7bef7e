package listener

import (
	"net"
	"testing"
	"time"

	"github.com/alxayo/streamcast/internal/framer"
	"github.com/alxayo/streamcast/internal/source"
)

func newTextSource(t *testing.T, producer net.Conn) *source.Source {
	t.Helper()
	f, err := framer.New("text/plain", nil)
	if err != nil {
		t.Fatalf("unexpected framer error: %v", err)
	}
	s := source.New("/stream.txt", source.Config{BurstSizeBytes: 1024, SourceTimeout: time.Second})
	s.Activate(source.NewConnID(), "producer", producer, f, framer.FormatText)
	return s
}

func TestLoopSingleIterationFramesAndDeliversBurst(t *testing.T) {
	prodServer, prodClient := net.Pipe()
	defer prodServer.Close()
	defer prodClient.Close()

	s := newTextSource(t, prodServer)
	lp := NewLoop(s, nil, nil, nil, nil)

	lstServer, lstClient := net.Pipe()
	defer lstServer.Close()
	defer lstClient.Close()
	l := source.NewListener(lstServer, PassthroughAdapter{})
	s.Listeners[l.ID] = l

	go prodClient.Write([]byte("hello world"))

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := lstClient.Read(buf)
		readDone <- buf[:n]
	}()

	if err := lp.iteration(); err != nil {
		t.Fatalf("unexpected iteration error: %v", err)
	}

	select {
	case b := <-readDone:
		if string(b) != "hello world" {
			t.Fatalf("expected listener to receive the burst payload, got %q", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for listener write")
	}

	if s.Queue.Len() != 1 {
		t.Fatalf("expected one queued refbuf, got %d", s.Queue.Len())
	}
}

func TestLoopTimeoutProducesSourceFatal(t *testing.T) {
	prodServer, prodClient := net.Pipe()
	defer prodClient.Close()

	s := newTextSource(t, prodServer)
	// Force an already-elapsed timeout so the first iteration reports it.
	s.Cfg.SourceTimeout = time.Nanosecond
	time.Sleep(time.Millisecond)

	lp := NewLoop(s, nil, nil, nil, nil)
	err := lp.iteration()
	if err == nil {
		t.Fatalf("expected a source-fatal timeout error")
	}
	prodServer.Close()
}

func TestLoopAdmitsPendingUpToMaxListeners(t *testing.T) {
	prodServer, prodClient := net.Pipe()
	defer prodServer.Close()
	defer prodClient.Close()

	s := newTextSource(t, prodServer)
	s.Cfg.MaxListeners = 1

	a, _ := net.Pipe()
	b, _ := net.Pipe()
	l1 := source.NewListener(a, PassthroughAdapter{})
	l2 := source.NewListener(b, PassthroughAdapter{})
	s.Pending[l1.ID] = l1
	s.Pending[l2.ID] = l2

	lp := NewLoop(s, nil, nil, nil, nil)
	s.ListenerMu.Lock()
	lp.admitPending()
	n := len(s.Listeners)
	remainingPending := len(s.Pending)
	s.ListenerMu.Unlock()

	if n != 1 {
		t.Fatalf("expected exactly 1 admitted listener under MaxListeners=1, got %d", n)
	}
	if remainingPending != 1 {
		t.Fatalf("expected 1 listener to remain pending, got %d", remainingPending)
	}
}

// TestServiceListenersWritesBeforeEvictingForLag covers spec §4.E's step
// order: a listener sitting at queue head when deletion is expected still
// gets its write attempt this iteration, and survives if that write
// advances it off head, instead of being evicted pre-emptively.
func TestServiceListenersWritesBeforeEvictingForLag(t *testing.T) {
	prodServer, prodClient := net.Pipe()
	defer prodServer.Close()
	defer prodClient.Close()

	s := newTextSource(t, prodServer)
	lp := NewLoop(s, nil, nil, nil, nil)

	lstServer, lstClient := net.Pipe()
	defer lstServer.Close()
	defer lstClient.Close()

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := lstClient.Read(buf)
		readDone <- buf[:n]
	}()

	go prodClient.Write([]byte("hi"))
	if err := lp.iteration(); err != nil {
		t.Fatalf("unexpected iteration error priming the queue: %v", err)
	}

	l := source.NewListener(lstServer, PassthroughAdapter{})
	s.Listeners[l.ID] = l

	s.ListenerMu.Lock()
	budgetExceeded := lp.serviceListeners(true) // deletionExpected, listener about to attach at head
	_, stillPresent := s.Listeners[l.ID]
	s.ListenerMu.Unlock()
	_ = budgetExceeded

	select {
	case b := <-readDone:
		if string(b) != "hi" {
			t.Fatalf("expected listener to receive the queued payload, got %q", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for listener write: lag eviction ran before the write was attempted")
	}
	if !stillPresent {
		t.Fatalf("expected the listener to survive the iteration that wrote and advanced it off head")
	}
}

type fakeResolver struct {
	dst    *source.Source
	ok     bool
	moved  bool
	movedFrom, movedTo *source.Source
}

func (r *fakeResolver) ResolveFallback(mount string) (*source.Source, bool) { return r.dst, r.ok }
func (r *fakeResolver) MoveClients(from, to *source.Source) {
	r.moved = true
	r.movedFrom, r.movedTo = from, to
}

func TestLoopDrainMigratesListenersViaResolver(t *testing.T) {
	prodServer, prodClient := net.Pipe()
	defer prodClient.Close()
	s := newTextSource(t, prodServer)

	fallback := source.New("/fallback.txt", source.Config{})

	lc, _ := net.Pipe()
	l := source.NewListener(lc, PassthroughAdapter{})
	s.Listeners[l.ID] = l

	r := &fakeResolver{dst: fallback, ok: true}
	lp := NewLoop(s, r, nil, nil, nil)
	lp.drain()

	if !r.moved {
		t.Fatalf("expected drain to invoke MoveClients when a fallback resolves")
	}
	if r.movedFrom != s || r.movedTo != fallback {
		t.Fatalf("expected MoveClients(s, fallback)")
	}
	if s.State() != source.StateTerminated {
		t.Fatalf("expected source terminated after drain")
	}
	prodServer.Close()
}

func TestLoopDrainWithoutResolverEvictsEveryone(t *testing.T) {
	prodServer, prodClient := net.Pipe()
	defer prodClient.Close()
	s := newTextSource(t, prodServer)

	lc, _ := net.Pipe()
	l := source.NewListener(lc, PassthroughAdapter{})
	s.Listeners[l.ID] = l

	lp := NewLoop(s, nil, nil, nil, nil)
	lp.drain()

	if len(s.Listeners) != 0 {
		t.Fatalf("expected all listeners evicted when no resolver is configured")
	}
	if s.State() != source.StateTerminated {
		t.Fatalf("expected source terminated after drain")
	}
	prodServer.Close()
}
