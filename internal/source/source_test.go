package source

import (
	"testing"
	"time"

	"github.com/alxayo/streamcast/internal/framer"
)

func TestNewSourceStartsReserved(t *testing.T) {
	s := New("/stream.mp3", Config{})
	if s.State() != StateReserved {
		t.Fatalf("expected RESERVED, got %v", s.State())
	}
	if s.Running() {
		t.Fatalf("a reserved source must not report Running")
	}
}

func TestActivateTransitionsToRunning(t *testing.T) {
	s := New("/stream.mp3", Config{})
	f, err := framer.New("audio/mpeg", nil)
	if err != nil {
		t.Fatalf("unexpected framer error: %v", err)
	}
	s.Activate(NewConnID(), "10.0.0.1:5000", nil, f, framer.FormatMP3)
	if !s.Running() {
		t.Fatalf("expected RUNNING after Activate")
	}
	if s.Queue == nil {
		t.Fatalf("expected a queue to be attached on activation")
	}
}

func TestStateTransitionsDrainingAndTerminate(t *testing.T) {
	s := New("/stream.mp3", Config{})
	s.Activate(NewConnID(), "peer", nil, nil, framer.FormatMP3)
	s.BeginDraining()
	if s.State() != StateDraining {
		t.Fatalf("expected DRAINING, got %v", s.State())
	}
	s.Terminate(false)
	if s.State() != StateTerminated {
		t.Fatalf("expected TERMINATED, got %v", s.State())
	}
}

func TestTerminateRelaySlotReverts(t *testing.T) {
	s := New("/relay.mp3", Config{})
	s.Activate(NewConnID(), "peer", nil, nil, framer.FormatMP3)
	s.Terminate(true)
	if s.State() != StateReserved {
		t.Fatalf("expected RESERVED for a relay slot, got %v", s.State())
	}
}

func TestTimedOutRespectsConfiguredTimeout(t *testing.T) {
	s := New("/stream.mp3", Config{SourceTimeout: time.Millisecond})
	s.Activate(NewConnID(), "peer", nil, nil, framer.FormatMP3)
	if s.TimedOut() {
		t.Fatalf("should not be timed out immediately after activation")
	}
	time.Sleep(5 * time.Millisecond)
	if !s.TimedOut() {
		t.Fatalf("expected timeout to trip after SourceTimeout elapses")
	}
	s.TouchLastRead()
	if s.TimedOut() {
		t.Fatalf("TouchLastRead should reset the timeout clock")
	}
}

func TestShortDelayFlagIsOneShot(t *testing.T) {
	s := New("/stream.mp3", Config{})
	if s.ShortDelay() {
		t.Fatalf("short delay should default false")
	}
	s.SetShortDelay()
	if !s.ShortDelay() {
		t.Fatalf("expected short delay to be set")
	}
	if s.ShortDelay() {
		t.Fatalf("short delay should clear after being read once")
	}
}

func TestApplyAudioInfoHeaderParsesFields(t *testing.T) {
	s := New("/stream.mp3", Config{})
	s.ApplyAudioInfoHeader("bitrate=128; samplerate=44100 ;channels=2")
	if s.AudioInfoInt("bitrate") != 128 {
		t.Fatalf("expected bitrate 128, got %d", s.AudioInfoInt("bitrate"))
	}
	if s.AudioInfoInt("samplerate") != 44100 {
		t.Fatalf("expected samplerate 44100, got %d", s.AudioInfoInt("samplerate"))
	}
	if s.AudioInfoInt("channels") != 2 {
		t.Fatalf("expected channels 2, got %d", s.AudioInfoInt("channels"))
	}
	if s.AudioInfoInt("missing") != 0 {
		t.Fatalf("expected 0 for an absent key")
	}
}

func TestPeerAddrStringNilSafe(t *testing.T) {
	if PeerAddrString(nil) != "" {
		t.Fatalf("expected empty string for nil conn")
	}
}
