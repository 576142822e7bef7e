package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestClassificationByKind(t *testing.T) {
	root := stdErrors.New("root")
	wrapped := fmt.Errorf("adding context: %w", root)

	tio := NewTransientIO("listener.write", wrapped)
	if !IsTransient(tio) {
		t.Fatalf("expected IsTransient=true")
	}
	if IsSourceFatal(tio) || IsListenerFatal(tio) {
		t.Fatalf("transient error misclassified")
	}
	if !stdErrors.Is(tio, root) {
		t.Fatalf("expected errors.Is to find root cause")
	}

	lf := NewListenerFatal("listener.read", stdErrors.New("conn reset"))
	if !IsListenerFatal(lf) {
		t.Fatalf("expected IsListenerFatal=true")
	}
	if IsSourceFatal(lf) {
		t.Fatalf("listener-fatal misclassified as source-fatal")
	}

	sf := NewSourceFatal("source.poll", stdErrors.New("timed out"))
	if !IsSourceFatal(sf) {
		t.Fatalf("expected IsSourceFatal=true")
	}

	fd := NewFramerDesync("ogg.sync", 4096, stdErrors.New("no capture pattern"))
	if !IsFramerDesync(fd) {
		t.Fatalf("expected IsFramerDesync=true")
	}
	var fde *FramerDesyncError
	if !stdErrors.As(fd, &fde) {
		t.Fatalf("expected errors.As to *FramerDesyncError")
	}
	if fde.SkippedByte != 4096 {
		t.Fatalf("unexpected skipped byte count: %d", fde.SkippedByte)
	}

	ad := NewAdmission("registry.reserve", stdErrors.New("mount already in use"))
	if !IsAdmission(ad) {
		t.Fatalf("expected IsAdmission=true")
	}
}

func TestUnwrapChains(t *testing.T) {
	base := stdErrors.New("io EOF")
	l1 := fmt.Errorf("read: %w", base)
	l2 := NewSourceFatal("source.poll", l1)
	if !stdErrors.Is(l2, base) {
		t.Fatalf("errors.Is should reach base cause")
	}
	var m coreMarker
	if !stdErrors.As(l2, &m) {
		t.Fatalf("expected to match coreMarker via As")
	}
}

func TestIsCore(t *testing.T) {
	if IsCore(nil) {
		t.Fatalf("nil should not be core")
	}
	if IsCore(stdErrors.New("plain")) {
		t.Fatalf("plain error should not be core")
	}
	if !IsCore(NewTransientIO("op", nil)) {
		t.Fatalf("transient io error should be core")
	}
	if !IsCore(NewAdmission("op", nil)) {
		t.Fatalf("admission error should be core")
	}
}

func TestNilSafety(t *testing.T) {
	if IsTransient(nil) || IsListenerFatal(nil) || IsSourceFatal(nil) || IsFramerDesync(nil) || IsAdmission(nil) {
		t.Fatalf("nil should not classify as any core error kind")
	}
}

func TestConstructorWithoutCause(t *testing.T) {
	lf := NewListenerFatal("listener.write", nil)
	if lf == nil {
		t.Fatalf("constructor returned nil")
	}
	if errStr := lf.Error(); errStr == "" {
		t.Fatalf("expected non-empty error string")
	}
	if !IsListenerFatal(lf) {
		t.Fatalf("expected listener-fatal classification")
	}
}

func TestNegativePredicates(t *testing.T) {
	plain := stdErrors.New("plain")
	if IsTransient(plain) || IsListenerFatal(plain) || IsSourceFatal(plain) || IsFramerDesync(plain) || IsAdmission(plain) {
		t.Fatalf("plain error shouldn't classify as any core error kind")
	}
}
