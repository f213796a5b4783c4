package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{"", ErrBadRequest, ErrNameTaken, ErrRateLimit, ErrUnauthorized} {
		if !IsKnownCode(code) {
			t.Fatalf("expected %q to be known", code)
		}
	}
	if IsKnownCode("E_MADE_UP") {
		t.Fatalf("unexpected known code")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"vote","postId":3}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypeVote {
		t.Fatalf("type=%q", m.Type)
	}
	if _, err := DecodeBase([]byte(`{`)); err == nil {
		t.Fatalf("expected error on malformed json")
	}
}
