package stats

import "testing"

func TestPublishAndGetListenerCount(t *testing.T) {
	s := NewMemorySink()
	if s.GetListenerCount("/live.mp3") != 0 {
		t.Fatalf("expected 0 for an unpublished mount")
	}
	s.Publish("/live.mp3", "listeners", "42")
	if n := s.GetListenerCount("/live.mp3"); n != 42 {
		t.Fatalf("expected 42, got %d", n)
	}
}

func TestGetCurrentArtistTitle(t *testing.T) {
	s := NewMemorySink()
	if s.GetCurrentArtistTitle("/live.mp3") != "" {
		t.Fatalf("expected empty string for an unpublished mount")
	}
	s.Publish("/live.mp3", "song", "Artist - Title")
	if s.GetCurrentArtistTitle("/live.mp3") != "Artist - Title" {
		t.Fatalf("expected published song value")
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	s := NewMemorySink()
	s.Publish("/live.mp3", "listeners", "3")
	snap := s.Snapshot("/live.mp3")
	snap["listeners"] = "999"
	if s.GetListenerCount("/live.mp3") != 3 {
		t.Fatalf("expected snapshot mutation not to affect the sink")
	}
}

func TestMountsAreIndependent(t *testing.T) {
	s := NewMemorySink()
	s.Publish("/a.mp3", "listeners", "1")
	s.Publish("/b.mp3", "listeners", "2")
	if s.GetListenerCount("/a.mp3") != 1 || s.GetListenerCount("/b.mp3") != 2 {
		t.Fatalf("expected independently tracked mounts")
	}
}
