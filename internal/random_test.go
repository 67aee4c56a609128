package internal

import (
	"encoding/base64"
	"testing"
)

func TestNewOpaqueTokenEntropyAndEncoding(t *testing.T) {
	tok, err := NewOpaqueToken(RotationTokenBytes)
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("expected unpadded base64url, got %q: %v", tok, err)
	}
	if len(raw) != RotationTokenBytes {
		t.Fatalf("expected %d bytes, got %d", RotationTokenBytes, len(raw))
	}

	other, _ := NewOpaqueToken(RotationTokenBytes)
	if other == tok {
		t.Fatal("expected distinct tokens")
	}
	if _, err := NewOpaqueToken(16); err == nil {
		t.Fatal("expected short tokens to be rejected")
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("expected deterministic digest")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatal("expected hex sha-256")
	}
}

func TestNewCodeDigits(t *testing.T) {
	seen := map[byte]bool{}
	for i := 0; i < 200; i++ {
		code, err := NewCode(6)
		if err != nil {
			t.Fatalf("NewCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for j := 0; j < len(code); j++ {
			if code[j] < '0' || code[j] > '9' {
				t.Fatalf("non-digit in %q", code)
			}
			seen[code[j]] = true
		}
	}
	if !seen['0'] {
		t.Fatal("expected leading or inner zeros to appear across 1200 digits")
	}
	if _, err := NewCode(3); err == nil {
		t.Fatal("expected invalid length to be rejected")
	}
}

func TestHashCodeBindsAddressAndPurpose(t *testing.T) {
	a := HashCode("a@example.com", "reset", "123456")
	b := HashCode("b@example.com", "reset", "123456")
	c := HashCode("a@example.com", "signup", "123456")
	if a == b || a == c {
		t.Fatal("expected digests to differ across address and purpose")
	}
}
