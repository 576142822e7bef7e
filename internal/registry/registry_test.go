package registry

import (
	"testing"
	"time"

	"github.com/alxayo/streamcast/internal/framer"
	"github.com/alxayo/streamcast/internal/source"
)

func TestReserveAndFindRaw(t *testing.T) {
	r := New()
	s, created := r.Reserve("/live.mp3", source.Config{})
	if !created || s == nil {
		t.Fatalf("expected a new reserved source to be created")
	}
	if _, created := r.Reserve("/live.mp3", source.Config{}); created {
		t.Fatalf("expected reserve on an occupied path to fail")
	}
	if r.FindRaw("/live.mp3") != s {
		t.Fatalf("expected find_raw to return the reserved source")
	}
	if r.FindRaw("/missing") != nil {
		t.Fatalf("expected nil for an unregistered path")
	}
}

func activate(s *source.Source, ft framer.FormatType) {
	s.Activate(source.NewConnID(), "peer", nil, nil, ft)
}

func TestFindWithFallbackWalksChainToRunningSource(t *testing.T) {
	r := New()
	live, _ := r.Reserve("/live.mp3", source.Config{FallbackMount: "/backup.mp3"})
	backup, _ := r.Reserve("/backup.mp3", source.Config{})
	activate(backup, framer.FormatMP3)
	// live stays RESERVED (no producer yet): resolution should fall through to backup.
	if s, ok := r.FindWithFallback("/live.mp3"); !ok || s != backup {
		t.Fatalf("expected fallback resolution to reach the running backup source")
	}
	activate(live, framer.FormatMP3)
	if s, ok := r.FindWithFallback("/live.mp3"); !ok || s != live {
		t.Fatalf("expected a running source to resolve to itself before following fallback")
	}
}

func TestFindWithFallbackBoundsCyclicGraphs(t *testing.T) {
	r := New()
	a, _ := r.Reserve("/a.mp3", source.Config{FallbackMount: "/b.mp3"})
	b, _ := r.Reserve("/b.mp3", source.Config{FallbackMount: "/a.mp3"})
	_, _ = a, b // both RESERVED, neither running: the chain must terminate, not spin forever

	if _, ok := r.FindWithFallback("/a.mp3"); ok {
		t.Fatalf("expected no source resolved from a two-node cycle with nothing running")
	}
}

func TestFindWithFallbackMissingPathFails(t *testing.T) {
	r := New()
	if _, ok := r.FindWithFallback("/nope.mp3"); ok {
		t.Fatalf("expected false for an unregistered mount")
	}
}

func TestRemoveOnlyDetachesCurrentOccupant(t *testing.T) {
	r := New()
	s, _ := r.Reserve("/live.mp3", source.Config{})
	if !r.Remove(s) {
		t.Fatalf("expected remove to succeed for the registered source")
	}
	if r.FindRaw("/live.mp3") != nil {
		t.Fatalf("expected the mount to be gone after remove")
	}
	if r.Remove(s) {
		t.Fatalf("expected a second remove of an already-detached source to fail")
	}
}

func TestIterYieldsSnapshotAndRespectsEarlyStop(t *testing.T) {
	r := New()
	r.Reserve("/a.mp3", source.Config{})
	r.Reserve("/b.mp3", source.Config{})
	r.Reserve("/c.mp3", source.Config{})

	seen := 0
	r.Iter(func(s *source.Source) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Fatalf("expected iteration to stop after the callback returned false, got %d calls", seen)
	}

	total := 0
	r.Iter(func(s *source.Source) bool {
		total++
		return true
	})
	if total != 3 {
		t.Fatalf("expected all 3 sources visited, got %d", total)
	}
}

func TestResolveFallbackRequiresMatchingFormatType(t *testing.T) {
	r := New()
	live, _ := r.Reserve("/live.ogg", source.Config{FallbackMount: "/backup.mp3"})
	backup, _ := r.Reserve("/backup.mp3", source.Config{})
	activate(backup, framer.FormatMP3)
	activate(live, framer.FormatOgg)

	if _, ok := r.ResolveFallback("/live.ogg"); ok {
		t.Fatalf("expected fallback resolution to refuse a format-type mismatch")
	}
}

func TestResolveFallbackSucceedsOnMatchingFormat(t *testing.T) {
	r := New()
	live, _ := r.Reserve("/live.mp3", source.Config{FallbackMount: "/backup.mp3"})
	backup, _ := r.Reserve("/backup.mp3", source.Config{})
	activate(backup, framer.FormatMP3)
	activate(live, framer.FormatMP3)

	dst, ok := r.ResolveFallback("/live.mp3")
	if !ok || dst != backup {
		t.Fatalf("expected resolution to the running backup source")
	}
}

func TestMoveClientsSameSourceIsNoOp(t *testing.T) {
	r := New()
	live, _ := r.Reserve("/live.mp3", source.Config{})
	activate(live, framer.FormatMP3)

	l1 := source.NewListener(nil, nil)
	live.Listeners[l1.ID] = l1

	done := make(chan struct{})
	go func() {
		r.MoveClients(live, live)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("MoveClients(s, s) deadlocked instead of returning as a no-op")
	}

	if _, ok := live.Listeners[l1.ID]; !ok {
		t.Fatalf("expected membership unchanged by a from==to migration")
	}
}

func TestMoveClientsRegraftsListenersIntoDestinationPending(t *testing.T) {
	r := New()
	live, _ := r.Reserve("/live.mp3", source.Config{})
	backup, _ := r.Reserve("/backup.mp3", source.Config{})
	activate(live, framer.FormatMP3)
	activate(backup, framer.FormatMP3)

	l1 := source.NewListener(nil, nil)
	l2 := source.NewListener(nil, nil)
	live.Listeners[l1.ID] = l1
	live.Pending[l2.ID] = l2

	r.MoveClients(live, backup)

	if len(live.Listeners) != 0 || len(live.Pending) != 0 {
		t.Fatalf("expected the draining source's sets to be emptied")
	}
	if live.ListenerCount() != 0 {
		t.Fatalf("expected the draining source's listener_count reset to 0")
	}
	if _, ok := backup.Pending[l1.ID]; !ok {
		t.Fatalf("expected the active listener to land in the destination's pending set")
	}
	if _, ok := backup.Pending[l2.ID]; !ok {
		t.Fatalf("expected the already-pending listener to also land in the destination's pending set")
	}
	if l1.CurRefbuf != nil || l2.CurRefbuf != nil {
		t.Fatalf("expected cursors reset so the next scheduling pass grafts at the destination's burst point")
	}
}
