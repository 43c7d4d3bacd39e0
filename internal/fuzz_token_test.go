package internal

import (
	"testing"
)

// FuzzValidOpaqueToken exercises the token shape check with arbitrary strings.
// Goal: no panics, and only 43-character base64url strings pass.
func FuzzValidOpaqueToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	if token, _, err := NewOpaqueToken(); err == nil {
		f.Add(token)
	}

	f.Fuzz(func(t *testing.T, input string) {
		if !ValidOpaqueToken(input) {
			return
		}
		if len(input) != 43 {
			t.Fatalf("accepted token of length %d", len(input))
		}
		if HashToken(input) != HashToken(input) {
			t.Fatal("hash is not deterministic")
		}
	})
}

func TestNewOpaqueToken(t *testing.T) {
	a, digestA, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	b, _, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}

	if a == b {
		t.Fatal("expected distinct tokens")
	}
	if !ValidOpaqueToken(a) {
		t.Fatalf("generated token %q rejected", a)
	}
	if digestA != HashToken(a) {
		t.Fatal("digest does not match HashToken")
	}
	if len(digestA) != 64 {
		t.Fatalf("expected hex sha256 digest, got %d chars", len(digestA))
	}
}
