package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAppendsBytesToMountFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}
	s.Write("/live.mp3", []byte("hello "))
	s.Write("/live.mp3", []byte("world"))
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error closing sink: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "_live.mp3.dump"))
	if err != nil {
		t.Fatalf("unexpected error reading dump file: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("expected concatenated writes, got %q", string(data))
	}
}

func TestSeparateMountsGetSeparateFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}
	s.Write("/a.mp3", []byte("aaa"))
	s.Write("/b.mp3", []byte("bbb"))
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error closing sink: %v", err)
	}

	a, err := os.ReadFile(filepath.Join(dir, "_a.mp3.dump"))
	if err != nil || string(a) != "aaa" {
		t.Fatalf("expected a.mp3's dump file to contain 'aaa', got %q err=%v", a, err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "_b.mp3.dump"))
	if err != nil || string(b) != "bbb" {
		t.Fatalf("expected b.mp3's dump file to contain 'bbb', got %q err=%v", b, err)
	}
}

func TestWriteOnUnopenableDirDisablesGracefully(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Remove the directory out from under the sink to force the next open to fail.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("unexpected error removing dir: %v", err)
	}
	// Write must not panic or block even though the underlying file can't be created.
	done := make(chan struct{})
	go func() {
		s.Write("/broken.mp3", []byte("x"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Write blocked on a disabled sink")
	}
}
