package queue

import (
	"testing"

	"github.com/alxayo/streamcast/internal/refbuf"
)

func newRB(n int) *refbuf.Refbuf { return refbuf.New(n, nil) }

func TestAppendMaintainsSizeAndChain(t *testing.T) {
	q := New(1024)
	a, b, c := newRB(100), newRB(200), newRB(300)
	q.Append(a)
	q.Append(b)
	q.Append(c)

	if q.Size() != 600 {
		t.Fatalf("expected size 600, got %d", q.Size())
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 nodes, got %d", q.Len())
	}
	sum := 0
	for n := q.Head(); n != nil; n = n.Next {
		sum += n.Len()
	}
	if sum != q.Size() {
		t.Fatalf("walking head..tail sum %d != queue_size %d", sum, q.Size())
	}
	if q.Tail() != c {
		t.Fatalf("expected tail == c")
	}
}

func TestFirstAppendSetsBurstPoint(t *testing.T) {
	q := New(1024)
	a := newRB(64)
	q.Append(a)
	a.Release() // hand the creation reference to the queue, as the listener loop does
	if q.BurstPoint() != a {
		t.Fatalf("expected burst point == first refbuf")
	}
	if got := a.RefCount(); got != 2 {
		t.Fatalf("expected refcount 2 (queue + burst), got %d", got)
	}
}

func TestBurstPointAdvancesWithinBound(t *testing.T) {
	q := New(100)
	a := newRB(50)
	b := newRB(60)
	c := newRB(70)
	q.Append(a) // burst = a, offset reset to 0
	q.Append(b) // offset = 60 > 100? no -> stays at a
	if q.BurstPoint() != a {
		t.Fatalf("expected burst point still a, got different")
	}
	q.Append(c) // offset = 60+70=130 > 100, a has next(b) -> advance to b, offset = 130-50=80 <= 100 -> stop
	// hand the creation references to the queue, as the listener loop does
	a.Release()
	b.Release()
	c.Release()
	if q.BurstPoint() != b {
		t.Fatalf("expected burst point to advance to b")
	}
	if a.RefCount() != 1 {
		t.Fatalf("expected a refcount 1 (queue only) after burst advanced past it, got %d", a.RefCount())
	}
}

func TestBurstContainmentInvariant(t *testing.T) {
	q := New(100)
	sizes := []int{40, 40, 40, 40, 40}
	var bufs []*refbuf.Refbuf
	for _, s := range sizes {
		rb := newRB(s)
		bufs = append(bufs, rb)
		q.Append(rb)
	}
	sum := 0
	for n := q.BurstPoint().Next; n != nil; n = n.Next {
		sum += n.Len()
	}
	maxLen := 40
	if sum > 100+maxLen {
		t.Fatalf("burst containment violated: sum=%d limit=%d", sum, 100+maxLen)
	}
}

func TestTrimReleasesUncontendedHead(t *testing.T) {
	q := New(0)
	a, b, c := newRB(10), newRB(10), newRB(10)
	q.Append(a)
	q.Append(b)
	q.Append(c)
	// hand the creation references to the queue, as the listener loop does
	a.Release()
	b.Release()
	c.Release()
	// with burstSizeBytes=0 the burst point advances to the tail (c) on every
	// append, so a and b are held only by the queue.
	q.Trim()
	if q.Head() == nil {
		t.Fatalf("expected at least the tail/burst point to remain")
	}
	if q.Head() != c {
		t.Fatalf("expected uncontended a and b released, leaving head == c")
	}
}

func TestTrimStopsAtListenerHeldRefbuf(t *testing.T) {
	q := New(1000) // large burst window keeps burst point at head
	a, b := newRB(10), newRB(10)
	q.Append(a)
	q.Append(b)
	a.Retain() // simulate a listener cursor pointing at a
	q.Trim()
	if q.Head() != a {
		t.Fatalf("expected trim to stop at listener-held head, head moved")
	}
	a.Release()
}

func TestQueueSizeLimitOverflow(t *testing.T) {
	q := New(0)
	q.Append(newRB(100))
	if !q.OverLimit(50) {
		t.Fatalf("expected overflow flagged when size exceeds limit")
	}
	if q.OverLimit(0) {
		t.Fatalf("limit of 0 means unbounded, should not flag overflow")
	}
}

func TestResetReleasesEverything(t *testing.T) {
	q := New(1024)
	a, b := newRB(10), newRB(10)
	q.Append(a)
	q.Append(b)
	// hand the creation references to the queue, as the listener loop does
	a.Release()
	b.Release()
	q.Reset()
	if q.Head() != nil || q.Tail() != nil || q.Size() != 0 || q.Len() != 0 {
		t.Fatalf("expected empty queue after reset")
	}
	if a.RefCount() != 0 || b.RefCount() != 0 {
		t.Fatalf("expected refbufs fully released: a=%d b=%d", a.RefCount(), b.RefCount())
	}
}
