package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/alxayo/streamcast/internal/auth"
	"github.com/alxayo/streamcast/internal/framer"
	"github.com/alxayo/streamcast/internal/hooks"
	"github.com/alxayo/streamcast/internal/listener"
	"github.com/alxayo/streamcast/internal/logger"
	"github.com/alxayo/streamcast/internal/source"
)

// handleMount dispatches a producer connect (PUT/SOURCE) or a listener
// connect (GET) for the mount named by the request path. HTTP request
// parsing itself is net/http's concern; everything this handler does with
// the parsed result — method, headers, path — is admission-time input to
// the streaming core (spec §6).
func (s *Server) handleMount(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut, "SOURCE":
		s.handleSource(w, r)
	case http.MethodGet:
		s.handleListener(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	mount := r.URL.Path
	if res := s.auth.Authenticate(mount, r); res == auth.Failed {
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	contentType := r.Header.Get("Content-Type")
	formatType := framer.FormatTypeForContentType(contentType)
	if formatType == framer.FormatUnknown {
		http.Error(w, "unsupported content-type", http.StatusUnsupportedMediaType)
		return
	}
	fr, err := framer.New(contentType, s.pool)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}

	src, ok := s.reg.Reserve(mount, s.cfg.DefaultMount)
	if !ok {
		http.Error(w, "mount already in use", http.StatusForbidden)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		s.reg.Remove(src)
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	conn, buf, err := hj.Hijack()
	if err != nil {
		s.reg.Remove(src)
		http.Error(w, "hijack failed", http.StatusInternalServerError)
		return
	}
	if err := writeResponseLine(buf, "HTTP/1.0 200 OK\r\n\r\n"); err != nil {
		_ = conn.Close()
		s.reg.Remove(src)
		return
	}

	if audioInfo := r.Header.Get("ice-audio-info"); audioInfo != "" {
		src.ApplyAudioInfoHeader(audioInfo)
	}
	src.Hidden = r.Header.Get("ice-public") == "0"
	src.Activate(source.NewConnID(), source.PeerAddrString(conn), conn, fr, formatType)
	s.applyFallbackOverride(src)

	s.fireEvent(hooks.EventSourceConnected, mount, string(src.ConnID))
	s.sourceWG.Add(1)
	go s.runSource(src)
}

// applyFallbackOverride implements the reverse migration of spec §4.D's
// "fallback override" / Testable-Properties "Override reclaim" scenario: a
// mount configured with fallback_override=true reclaims the listeners
// currently parked on its configured fallback mount the moment it comes up,
// rather than waiting for them to arrive the ordinary way (a listener
// connecting directly to mount once it resolves as running). If the
// fallback mount has no running source, or its format type doesn't match
// the newly-arrived source, this is a no-op.
func (s *Server) applyFallbackOverride(src *source.Source) {
	if !src.Cfg.FallbackOverride || src.Cfg.FallbackMount == "" {
		return
	}
	fallbackSrc := s.reg.FindRaw(src.Cfg.FallbackMount)
	if fallbackSrc == nil || !fallbackSrc.Running() || fallbackSrc.FormatType != src.FormatType {
		return
	}
	s.reg.MoveClients(fallbackSrc, src)
}

// runSource drives src's listener-loop scheduler until the source stops,
// then unregisters it. The loop goroutine and the post-loop hook dispatch
// are unified under one errgroup so a future hook error has a single place
// to surface, replacing the ad hoc wait-then-notify the teacher used for
// its one coupled connection/recorder pair.
func (s *Server) runSource(src *source.Source) {
	defer s.sourceWG.Done()
	defer s.reg.Remove(src)

	lp := listener.NewLoop(src, s.reg, s.dump, s.stats, logger.WithSource(s.log, src.Mount, string(src.ConnID), source.PeerAddrString(src.ProducerConn)))

	done := make(chan struct{})
	g := new(errgroup.Group)
	g.Go(func() error {
		lp.Run(context.Background())
		close(done)
		return nil
	})
	g.Go(func() error {
		<-done
		s.fireEvent(hooks.EventSourceDisconnected, src.Mount, string(src.ConnID))
		return nil
	})
	_ = g.Wait()
}

func (s *Server) handleListener(w http.ResponseWriter, r *http.Request) {
	mount := r.URL.Path
	if res := s.auth.Authenticate(mount, r); res == auth.Failed {
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	src, ok := s.reg.FindWithFallback(mount)
	if !ok {
		http.Error(w, "mount not found", http.StatusNotFound)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	conn, buf, err := hj.Hijack()
	if err != nil {
		return
	}

	wantsICY := r.Header.Get("Icy-MetaData") == "1"
	adapter, icyMetadata := s.adapterForFormat(src.FormatType, wantsICY, mount)
	l := source.NewListener(conn, adapter)
	l.IcyMetadata = icyMetadata

	status := "HTTP/1.0 200 OK\r\n"
	if icyMetadata {
		status = "ICY 200 OK\r\n"
	}
	headers := status + "Content-Type: " + contentTypeForFormat(src.FormatType) + "\r\n"
	if icyMetadata {
		headers += fmt.Sprintf("icy-metaint: %d\r\n", 16000)
	}
	headers += "\r\n"
	if err := writeResponseLine(buf, headers); err != nil {
		_ = conn.Close()
		return
	}

	src.ListenerMu.Lock()
	src.Pending[l.ID] = l
	src.ListenerMu.Unlock()
	s.fireEvent(hooks.EventListenerConnected, mount, string(l.ID))

	// The scheduler only ever writes to conn; detecting disconnect requires
	// a concurrent reader. The hijacked connection's only inbound traffic
	// from here on is the client closing it.
	discardBuf := make([]byte, 512)
	for {
		if _, err := conn.Read(discardBuf); err != nil {
			break
		}
	}

	src.ListenerMu.Lock()
	delete(src.Listeners, l.ID)
	delete(src.Pending, l.ID)
	src.ListenerMu.Unlock()
	l.Detach()
	s.fireEvent(hooks.EventListenerDisconnected, mount, string(l.ID))
	_ = conn.Close()
}

func (s *Server) fireEvent(t hooks.EventType, mount, connID string) {
	if s.hookMgr == nil {
		return
	}
	event := hooks.NewEvent(t).WithMount(mount).WithConnID(connID)
	s.hookMgr.TriggerEvent(context.Background(), *event)
}

func (s *Server) adapterForFormat(ft framer.FormatType, wantsICY bool, mount string) (source.CodecAdapter, bool) {
	switch ft {
	case framer.FormatOgg:
		return listener.OggAdapter{}, false
	case framer.FormatMP3:
		if wantsICY {
			return listener.MP3ICYAdapter{MetaString: func() string {
				return "StreamTitle='" + s.stats.GetCurrentArtistTitle(mount) + "';"
			}}, true
		}
		return listener.PassthroughAdapter{}, false
	default:
		return listener.PassthroughAdapter{}, false
	}
}

func contentTypeForFormat(ft framer.FormatType) string {
	switch ft {
	case framer.FormatOgg:
		return "application/ogg"
	case framer.FormatMP3:
		return "audio/mpeg"
	case framer.FormatAAC:
		return "audio/aac"
	case framer.FormatWebM:
		return "video/webm"
	case framer.FormatMPEGTS:
		return "video/mp2t"
	case framer.FormatText:
		return "text/plain"
	case framer.FormatFLV:
		return "video/x-flv"
	default:
		return "application/octet-stream"
	}
}

func writeResponseLine(buf *bufio.ReadWriter, s string) error {
	if _, err := buf.WriteString(s); err != nil {
		return err
	}
	return buf.Flush()
}
