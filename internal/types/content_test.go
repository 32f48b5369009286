package types

import "testing"

func TestHashTextStable(t *testing.T) {
	a := HashText("同一段文本")
	b := HashText("同一段文本")
	if a != b {
		t.Errorf("hash not deterministic: %q vs %q", a, b)
	}
	if len(a) != 32 {
		t.Errorf("hash length = %d, want 32 hex chars", len(a))
	}
	if HashText("另一段文本") == a {
		t.Error("different texts collided")
	}
}

func TestHashURLMatchesHashText(t *testing.T) {
	u := "https://example.com/path?q=1"
	if HashURL(u) != HashText(u) {
		t.Error("HashURL diverged from HashText")
	}
}
