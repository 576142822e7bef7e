// Package source implements the Source and Listener records of the
// streaming core's data model: one Source per active mount, tracking its
// producer connection, Framer, queue, and the listener population attached
// to it. The listener-loop scheduler (internal/listener) is the only writer
// of a Source's mutable fields; the mount registry only reads them or
// mutates the listener sets under the move-clients protocol.
package source

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alxayo/streamcast/internal/framer"
	"github.com/alxayo/streamcast/internal/queue"
)

// State is the Source lifecycle state machine (spec §4.E):
// RESERVED -> RUNNING -> DRAINING -> TERMINATED, with RESERVED reachable
// again from TERMINATED for a persistent relay slot.
type State int

const (
	StateReserved State = iota
	StateRunning
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReserved:
		return "RESERVED"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// ConnID is a globally-unique identifier for a producer or listener
// connection that must survive a registry-level mount move (spec DOMAIN
// STACK: replaces the teacher's in-process counter for identifiers that
// must remain stable across that boundary).
type ConnID string

// NewConnID mints a fresh globally-unique connection identifier.
func NewConnID() ConnID { return ConnID(uuid.NewString()) }

// Config carries the per-mount fallback configuration the core reads once
// at Source activation (spec §6): fallback topology, capacity limits, and
// the burst/timeout tuning knobs.
type Config struct {
	FallbackMount    string
	FallbackOverride bool
	FallbackWhenFull bool
	MaxListeners     int
	QueueSizeLimit   int
	BurstSizeBytes   int
	SourceTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSizeLimit <= 0 {
		c.QueueSizeLimit = 1 << 20 // 1MiB
	}
	if c.BurstSizeBytes <= 0 {
		c.BurstSizeBytes = 65536
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = 10 * time.Second
	}
	return c
}

// Source is one record per active mount (spec §3). Only the owning
// listener-loop iteration mutates queue/listener state; the registry only
// touches ListenerMu-guarded sets during admission and migration.
type Source struct {
	Mount      string // unique key, case-sensitive, starts with "/"
	ConnID     ConnID
	ProducerID string // stable peer identity, e.g. remote address

	// ProducerConn is the live connection the listener loop reads from.
	// Set at Activate time; nil for a reserved, not-yet-connected relay slot.
	ProducerConn net.Conn

	Framer *framer.Framer
	Queue  *queue.Queue

	Cfg Config

	AudioInfo map[string]string // parsed ice-audio-info, supplemental metadata

	FormatType framer.FormatType
	Hidden     bool
	YPPublic   bool

	stateMu sync.RWMutex
	state   State

	lastReadMu sync.Mutex
	lastRead   time.Time

	// ListenerMu guards Listeners and Pending. The registry takes this
	// lock during the move-clients protocol; the listener loop holds it
	// across each iteration's admit/write/evict pass, listener writes
	// included.
	ListenerMu sync.Mutex
	Listeners  map[ConnID]*Listener
	Pending    map[ConnID]*Listener

	listenerCount int

	shortDelay bool // spec SUPPLEMENTED FEATURES: next poll uses 0ms timeout
}

// New constructs a reserved Source for mount, populated with its fallback
// configuration. The Framer and Queue are attached separately once the
// producer's content-type is known (New is called at reserve time, before
// the producer connects).
func New(mount string, cfg Config) *Source {
	return &Source{
		Mount:     mount,
		Cfg:       cfg.withDefaults(),
		state:     StateReserved,
		Listeners: make(map[ConnID]*Listener),
		Pending:   make(map[ConnID]*Listener),
	}
}

// Activate transitions a reserved Source to RUNNING once the producer has
// been admitted, attaching its Framer and a fresh Queue sized by the
// mount's configured burst window.
func (s *Source) Activate(connID ConnID, producerID string, conn net.Conn, f *framer.Framer, formatType framer.FormatType) {
	s.ConnID = connID
	s.ProducerID = producerID
	s.ProducerConn = conn
	s.Framer = f
	s.FormatType = formatType
	s.Queue = queue.New(s.Cfg.BurstSizeBytes)
	s.touchLastRead()
	s.setState(StateRunning)
}

func (s *Source) setState(v State) {
	s.stateMu.Lock()
	s.state = v
	s.stateMu.Unlock()
}

// State returns the Source's current lifecycle state.
func (s *Source) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Running reports whether the Source is actively servicing its listener
// loop (the only state in which producer bytes are being read).
func (s *Source) Running() bool { return s.State() == StateRunning }

// BeginDraining marks the Source as shutting down; the listener loop
// observes this at the top of its next iteration and performs migration.
func (s *Source) BeginDraining() { s.setState(StateDraining) }

// Terminate marks the Source terminated. isRelay requests reverting to
// RESERVED instead (a persistent relay slot survives its producer).
func (s *Source) Terminate(isRelay bool) {
	if isRelay {
		s.setState(StateReserved)
		return
	}
	s.setState(StateTerminated)
}

// TouchLastRead records that producer bytes were just observed, resetting
// the source_timeout clock.
func (s *Source) touchLastRead() {
	s.lastReadMu.Lock()
	s.lastRead = time.Now()
	s.lastReadMu.Unlock()
}

// TouchLastRead is the exported form, called by the listener loop whenever
// the producer socket yields bytes.
func (s *Source) TouchLastRead() { s.touchLastRead() }

// TimedOut reports whether no producer bytes have arrived within
// Cfg.SourceTimeout.
func (s *Source) TimedOut() bool {
	s.lastReadMu.Lock()
	defer s.lastReadMu.Unlock()
	return time.Since(s.lastRead) > s.Cfg.SourceTimeout
}

// ShortDelay reports and clears the short_delay flag (spec SUPPLEMENTED
// FEATURES): set when a write pass hit its per-iteration cap, consumed by
// the next producer-socket poll to use a 0ms timeout instead of 250ms.
func (s *Source) ShortDelay() bool {
	v := s.shortDelay
	s.shortDelay = false
	return v
}

// SetShortDelay flags that the next poll should use a 0ms timeout.
func (s *Source) SetShortDelay() { s.shortDelay = true }

// ListenerCount returns the last-published listener count.
func (s *Source) ListenerCount() int {
	s.ListenerMu.Lock()
	defer s.ListenerMu.Unlock()
	return s.listenerCount
}

// SetListenerCount updates the cached count (called by the listener loop
// after each iteration's eviction pass, and by the move-clients protocol).
func (s *Source) SetListenerCount(n int) { s.listenerCount = n }

// ApplyAudioInfoHeader parses the ice-audio-info header value
// ("bitrate=128;samplerate=44100;channels=2;quality=...") into AudioInfo,
// seeding reported values before the first frame is parsed (spec
// SUPPLEMENTED FEATURES, grounded on original_source's
// source.c:_parse_audio_info).
func (s *Source) ApplyAudioInfoHeader(header string) {
	info := make(map[string]string)
	for _, kv := range strings.Split(header, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		info[strings.ToLower(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	s.AudioInfo = info
}

// AudioInfoInt returns a parsed integer field from AudioInfo (bitrate,
// samplerate, channels), or 0 if absent/unparsable.
func (s *Source) AudioInfoInt(key string) int {
	if s.AudioInfo == nil {
		return 0
	}
	v, ok := s.AudioInfo[key]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// PeerAddrString renders a net.Addr defensively for logging; producer/
// listener connection handles are net.Conn in the real transport but tests
// may supply nil.
func PeerAddrString(conn net.Conn) string {
	if conn == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
