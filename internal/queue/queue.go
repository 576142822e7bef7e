// Package queue implements the per-source FIFO of refbufs described in the
// streaming core's component design: a singly linked list owned by one
// Source, with a trailing burst-on-connect window and a refcount-driven
// trim policy. Only the owning source task mutates a Queue; no lock is
// required during a listener walk.
package queue

import "github.com/alxayo/streamcast/internal/refbuf"

// Queue is a singly linked FIFO of refbufs: head -> ... -> tail. Appending
// maintains burstPoint/burstOffset per the burst-containment invariant;
// Trim releases refbufs from the head while they are uncontended.
type Queue struct {
	head *refbuf.Refbuf
	tail *refbuf.Refbuf

	burstPoint  *refbuf.Refbuf
	burstOffset int

	size  int // bytes, spec's queue_size
	nodes int // node count, diagnostics parity with refbuf_queue_size

	burstSizeBytes int
}

// New creates an empty queue whose burst window targets burstSizeBytes.
func New(burstSizeBytes int) *Queue {
	return &Queue{burstSizeBytes: burstSizeBytes}
}

// Size returns the total bytes currently queued (spec's queue_size).
func (q *Queue) Size() int { return q.size }

// Len returns the number of refbufs currently queued (node count).
func (q *Queue) Len() int { return q.nodes }

// Head returns the current queue head (nil if empty).
func (q *Queue) Head() *refbuf.Refbuf { return q.head }

// Tail returns the current queue tail (nil if empty).
func (q *Queue) Tail() *refbuf.Refbuf { return q.tail }

// BurstPoint returns the current burst point, the attach cursor for newly
// arrived listeners within the burst-on-connect window.
func (q *Queue) BurstPoint() *refbuf.Refbuf { return q.burstPoint }

// Append adds rb to the tail, retaining one reference on the queue's
// behalf, and advances the burst point per §4.C: on the first append the
// burst point becomes the new refbuf; on later appends burstOffset grows by
// rb's length and, while it exceeds burstSizeBytes and the burst point has a
// next link, the burst point advances one link, dropping that link's own
// reference and shrinking burstOffset by its length.
func (q *Queue) Append(rb *refbuf.Refbuf) {
	if rb == nil {
		return
	}
	rb.Retain()
	if q.tail == nil {
		q.head = rb
		q.tail = rb
	} else {
		q.tail.Next = rb
		q.tail = rb
	}
	q.size += rb.Len()
	q.nodes++

	if q.burstPoint == nil {
		q.burstPoint = rb
		q.burstPoint.Retain()
		q.burstOffset = 0
		return
	}

	q.burstOffset += rb.Len()
	for q.burstOffset > q.burstSizeBytes && q.burstPoint.Next != nil {
		old := q.burstPoint
		q.burstOffset -= old.Len()
		q.burstPoint = old.Next
		q.burstPoint.Retain()
		old.Release()
	}
}

// OverLimit reports whether size has exceeded limit, signalling
// deletion_expected to the listener loop for this iteration.
func (q *Queue) OverLimit(limit int) bool { return limit > 0 && q.size > limit }

// Trim walks from head, releasing refbufs while their refcount is 1 (held
// only by the queue itself) and they are neither the burst point nor the
// tail. It stops at the first refbuf still referenced by a listener or that
// is the burst point, per §4.C.
func (q *Queue) Trim() {
	for q.head != nil && q.head != q.tail && q.head != q.burstPoint && q.head.RefCount() == 1 {
		old := q.head
		q.head = old.Next
		q.size -= old.Len()
		q.nodes--
		old.Release()
	}
	if q.head == nil {
		q.tail = nil
	}
}

// Reset releases every refbuf still owned by the queue (head chain and the
// extra burst-point reference) and returns it to an empty state. Used when
// a Source tears down.
func (q *Queue) Reset() {
	for n := q.head; n != nil; {
		next := n.Next
		n.Release()
		n = next
	}
	q.burstPoint.Release()
	q.head, q.tail, q.burstPoint = nil, nil, nil
	q.size, q.nodes, q.burstOffset = 0, 0, 0
}
