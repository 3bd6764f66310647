package utils

import "testing"

func TestHashStringToUint64Stable(t *testing.T) {
	if HashStringToUint64("ticket-1") != HashStringToUint64("ticket-1") {
		t.Fatalf("hash is not deterministic")
	}
	if HashStringToUint64("ticket-1") == HashStringToUint64("ticket-2") {
		t.Fatalf("distinct keys collided")
	}
}

func TestShortCode(t *testing.T) {
	code := ShortCode("abc", 5)
	if len(code) != 5 {
		t.Fatalf("expected 5 digits, got %q", code)
	}
	if ShortCode("abc", 5) != code {
		t.Fatalf("short code is not stable")
	}
}

func TestPick(t *testing.T) {
	opts := []string{"a", "b", "c"}
	got := Pick("key", opts)
	if got != Pick("key", opts) {
		t.Fatalf("pick is not stable")
	}
}
