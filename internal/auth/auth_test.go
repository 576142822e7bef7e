package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fixedAuthenticator struct{ result Result }

func (f fixedAuthenticator) Authenticate(mount string, r *http.Request) Result { return f.result }

func TestResultString(t *testing.T) {
	cases := map[Result]string{OK: "OK", Failed: "FAILED", NoMatch: "NOMATCH", Result(99): "UNKNOWN"}
	for result, want := range cases {
		if got := result.String(); got != want {
			t.Fatalf("Result(%d).String() = %q, want %q", result, got, want)
		}
	}
}

func TestEmptyChainAdmits(t *testing.T) {
	var c Chain
	req := httptest.NewRequest(http.MethodGet, "/stream.mp3", nil)
	if got := c.Authenticate("/stream.mp3", req); got != OK {
		t.Fatalf("expected OK from an empty chain, got %v", got)
	}
}

func TestChainStopsAtFirstNonNoMatch(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stream.mp3", nil)
	c := Chain{fixedAuthenticator{NoMatch}, fixedAuthenticator{Failed}, fixedAuthenticator{OK}}
	if got := c.Authenticate("/stream.mp3", req); got != Failed {
		t.Fatalf("expected the chain to stop at Failed, got %v", got)
	}
}

func TestChainFallsThroughNoMatchToOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stream.mp3", nil)
	c := Chain{fixedAuthenticator{NoMatch}, fixedAuthenticator{NoMatch}, fixedAuthenticator{OK}}
	if got := c.Authenticate("/stream.mp3", req); got != OK {
		t.Fatalf("expected fallthrough to the final OK authenticator, got %v", got)
	}
}
