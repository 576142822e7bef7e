// Package refbuf implements the reference-counted immutable byte buffer
// that is the unit of queue membership and listener consumption throughout
// the streaming core. It is modeled directly on Icecast's refbuf_t: a byte
// slice, a strong reference count, an optional "associated" header chain,
// an optional "next" queue link, and a sync-point flag.
package refbuf

import (
	"sync/atomic"

	"github.com/alxayo/streamcast/internal/bufpool"
)

// Refbuf is an immutable byte buffer shared between the source queue and
// every listener currently reading it. The count starts at 1 (the
// allocating caller's reference); Retain/Release adjust it atomically.
// Data is filled by the allocating caller and never mutated once shared.
type Refbuf struct {
	Data []byte

	// SyncPoint is true iff a listener may legally begin playback here.
	SyncPoint bool

	// CodecKey is opaque per-codec state the framer attaches to a refbuf
	// (e.g. an Ogg stream serial, or nothing for formats that need none).
	CodecKey any

	// Associated points to the first refbuf of a header chain that must
	// precede this buffer when it is first delivered to a listener. Each
	// header refbuf's own count includes one increment per data refbuf
	// that associates with it; releasing this refbuf releases the chain.
	Associated *Refbuf

	// Next links refbufs into the singly linked source queue. The queue
	// holds one strong reference per link.
	Next *Refbuf

	count    int64
	pool     *bufpool.Pool
	unpooled bool // set by NewFromBytes: Data is never handed to a pool
}

// New allocates a refbuf of the given length from pool (or the package
// default pool if pool is nil) with refcount 1.
func New(length int, pool *bufpool.Pool) *Refbuf {
	var data []byte
	if pool != nil {
		data = pool.Get(length)
	} else {
		data = bufpool.Get(length)
	}
	return &Refbuf{
		Data:  data,
		count: 1,
		pool:  pool,
	}
}

// NewFromBytes wraps an existing slice as a refbuf with refcount 1, bypassing
// the pool (used when the caller already owns a slice it doesn't want pooled,
// e.g. a synthesized FLV header).
func NewFromBytes(data []byte) *Refbuf {
	return &Refbuf{Data: data, count: 1, unpooled: true}
}

// Len returns the buffer's byte length.
func (r *Refbuf) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Data)
}

// Retain increments the reference count. Must be called once for every
// independent pointer kept to this refbuf (queue link, listener cursor,
// associated-chain membership).
func (r *Refbuf) Retain() {
	if r == nil {
		return
	}
	atomic.AddInt64(&r.count, 1)
}

// Release decrements the reference count and, on reaching zero, returns the
// backing storage to its pool and releases the associated header chain.
// Safe to call on nil.
func (r *Refbuf) Release() {
	if r == nil {
		return
	}
	if atomic.AddInt64(&r.count, -1) != 0 {
		return
	}
	r.Associated.Release()
	if r.pool != nil {
		r.pool.Put(r.Data)
	} else if !r.unpooled {
		bufpool.Put(r.Data)
	}
	r.Data = nil
}

// RefCount returns the current reference count, for diagnostics and tests.
func (r *Refbuf) RefCount() int64 {
	if r == nil {
		return 0
	}
	return atomic.LoadInt64(&r.count)
}

// Associate attaches chain as this refbuf's header chain, retaining it once
// on this refbuf's behalf. Call at most once per refbuf, before it is shared.
func (r *Refbuf) Associate(chain *Refbuf) {
	if r == nil || chain == nil {
		return
	}
	chain.Retain()
	r.Associated = chain
}
