// Package file implements dumpsink.Sink by appending each mount's bytes to
// a per-mount file on disk, grounded on the teacher's FLV Recorder
// (internal/rtmp/media/recorder.go): "on any write error the recorder is
// disabled, future live streaming continues unaffected." Generalized here
// from one fixed FLV-tag writer to an arbitrary raw-byte append sink keyed
// by mount path, fed through a bounded channel so a slow disk never blocks
// the scheduler.
package file

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const writeQueueDepth = 256

type mountFile struct {
	f        *os.File
	disabled bool
	queue    chan []byte
	done     chan struct{}
}

// Sink appends bytes written for each mount to dir/<sanitized-mount>.dump,
// where every byte of the full mount path outside [A-Za-z0-9._-] becomes
// '_' (e.g. "/live.mp3" -> "_live.mp3.dump").
type Sink struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	mounts map[string]*mountFile
}

// New creates a Sink rooted at dir (created if absent).
func New(dir string, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Sink{dir: dir, logger: logger, mounts: make(map[string]*mountFile)}, nil
}

func (s *Sink) openLocked(mount string) *mountFile {
	if mf, ok := s.mounts[mount]; ok {
		return mf
	}
	path := filepath.Join(s.dir, sanitize(mount)+".dump")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	mf := &mountFile{queue: make(chan []byte, writeQueueDepth), done: make(chan struct{})}
	if err != nil {
		s.logger.Error("dump file open failed, disabling", "mount", mount, "path", path, "err", err)
		mf.disabled = true
		close(mf.done)
	} else {
		mf.f = f
		go mf.run(s.logger, mount)
	}
	s.mounts[mount] = mf
	return mf
}

func (mf *mountFile) run(logger *slog.Logger, mount string) {
	defer close(mf.done)
	for p := range mf.queue {
		if mf.disabled {
			continue
		}
		if _, err := mf.f.Write(p); err != nil {
			logger.Error("dump file write failed, disabling", "mount", mount, "err", err)
			mf.disabled = true
			_ = mf.f.Close()
		}
	}
	if mf.f != nil {
		_ = mf.f.Close()
	}
}

// Write enqueues p for mount's dump file, dropping it if the queue is full
// (a backlogged sink must never apply backpressure to the scheduler).
func (s *Sink) Write(mount string, p []byte) {
	s.mu.Lock()
	mf := s.openLocked(mount)
	s.mu.Unlock()

	if mf.disabled || len(p) == 0 {
		return
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case mf.queue <- cp:
	default:
		s.logger.Warn("dump file queue full, dropping chunk", "mount", mount, "bytes", len(p))
	}
}

// Close stops every per-mount writer goroutine and closes its file, waiting
// for queued writes to flush.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mf := range s.mounts {
		close(mf.queue)
		<-mf.done
	}
	return nil
}

func sanitize(mount string) string {
	out := make([]byte, 0, len(mount))
	for i := 0; i < len(mount); i++ {
		c := mount[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
