// Package registry implements the mountpoint registry: the process-wide
// path -> Source map, the fallback graph resolution, and the move-clients
// migration protocol (spec §4.D). Grounded on the teacher's stream registry
// (internal/rtmp/server/registry.go CreateStream/GetStream/DeleteStream
// pattern), generalized from an RTMP publisher/subscriber map to a mount
// path -> Source map with fallback-chain resolution layered on top.
package registry

import (
	"sync"

	"github.com/alxayo/streamcast/internal/source"
)

// MaxFallbackDepth bounds find_with_fallback so a cyclic fallback
// configuration cannot spin the resolver forever (spec §4.D / edge case
// "cyclic graphs").
const MaxFallbackDepth = 10

// Registry is the process-wide mount path -> Source map (spec §3: "Ordered
// map path -> Source, protected by a read-write lock"). moveMu is the
// global move_clients mutex (spec §4.D / §5) serializing any two migrations
// that might otherwise race over the same listener.
type Registry struct {
	mu     sync.RWMutex
	mounts map[string]*source.Source

	moveMu sync.Mutex
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{mounts: make(map[string]*source.Source)}
}

// Reserve inserts an empty, RESERVED Source at path if absent. Returns
// (source, true) on success, or (existing, false) if the path is already
// occupied (spec: "reserve(path) inserts an empty Source if absent, else
// fails").
func (r *Registry) Reserve(path string, cfg source.Config) (*source.Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.mounts[path]; ok {
		return existing, false
	}
	s := source.New(path, cfg)
	r.mounts[path] = s
	return s, true
}

// FindRaw returns the Source registered at the exact path, or nil.
func (r *Registry) FindRaw(path string) *source.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mounts[path]
}

// FindWithFallback walks path's fallback chain (spec §3 "Fallback graph")
// up to MaxFallbackDepth, returning the first Source found that is
// currently Running. Mount paths are resolved by string lookup on each
// hop, never by a cached pointer, so a reconfigured or replaced Source
// along the chain is picked up immediately (spec edge case: "do not
// represent the fallback graph as owning pointers").
func (r *Registry) FindWithFallback(path string) (*source.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findWithFallbackLocked(path)
}

func (r *Registry) findWithFallbackLocked(path string) (*source.Source, bool) {
	seen := path
	for depth := 0; depth < MaxFallbackDepth; depth++ {
		s, ok := r.mounts[seen]
		if !ok {
			return nil, false
		}
		if s.Running() {
			return s, true
		}
		next := s.Cfg.FallbackMount
		if next == "" {
			return nil, false
		}
		seen = next
	}
	return nil, false
}

// Remove detaches s from the registry if it is still the Source registered
// at its mount path (a reserved slot that was replaced is left alone).
func (r *Registry) Remove(s *source.Source) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.mounts[s.Mount]; ok && cur == s {
		delete(r.mounts, s.Mount)
		return true
	}
	return false
}

// Iter yields a point-in-time snapshot of every registered Source to fn,
// stopping early if fn returns false. Grounded on the teacher's
// BroadcastMessage pattern of snapshotting under the read lock before
// calling out, so admin queries never hold the registry lock during
// arbitrary caller work.
func (r *Registry) Iter(fn func(*source.Source) bool) {
	r.mu.RLock()
	snapshot := make([]*source.Source, 0, len(r.mounts))
	for _, s := range r.mounts {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}

// ResolveFallback implements listener.MountResolver: it resolves mount's
// configured fallback path (not mount's own fallback chain recursively —
// the caller is the Source that is itself shutting down, so we start one
// hop down at its configured fallback_mount) to a currently running Source
// of the same format type (spec §4.D: "migrate iff F exists and its format
// type equals S's format type").
func (r *Registry) ResolveFallback(mount string) (*source.Source, bool) {
	r.mu.RLock()
	s, ok := r.mounts[mount]
	if !ok || s.Cfg.FallbackMount == "" {
		r.mu.RUnlock()
		return nil, false
	}
	dst, ok := r.findWithFallbackLocked(s.Cfg.FallbackMount)
	r.mu.RUnlock()
	if !ok || dst.FormatType != s.FormatType {
		return nil, false
	}
	return dst, true
}

// MoveClients implements the move-clients protocol (spec §4.D steps 2-4):
// every listener of from has its cursor cleared and is queued in to's
// pending set, to be grafted onto to's burst point on its next scheduling
// pass. Held across the registry's global move_clients mutex so
// two concurrent migrations (e.g. a shutdown migration racing an override
// reclaim) never contend for the same listener's fields concurrently.
//
// Lock order within a call is fixed — from's listener lock first, to's
// second. A shutdown migration (live to fallback) and an override reclaim
// (fallback to new arrival) therefore lock the same pair in opposite
// orders; moveMu, taken before either listener lock, keeps two migrations
// from ever holding the pair at the same time.
func (r *Registry) MoveClients(from, to *source.Source) {
	if from == to {
		return
	}

	r.moveMu.Lock()
	defer r.moveMu.Unlock()

	from.ListenerMu.Lock()
	to.ListenerMu.Lock()

	for _, l := range from.Listeners {
		l.ResetCursor()
		to.Pending[l.ID] = l
	}
	for _, l := range from.Pending {
		l.ResetCursor()
		to.Pending[l.ID] = l
	}
	from.Listeners = make(map[source.ConnID]*source.Listener)
	from.Pending = make(map[source.ConnID]*source.Listener)
	from.SetListenerCount(0)

	to.ListenerMu.Unlock()
	from.ListenerMu.Unlock()
}
