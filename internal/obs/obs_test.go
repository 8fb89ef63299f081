package obs

import (
	"strings"
	"testing"
)

func TestMaskIDStableAndOpaque(t *testing.T) {
	id := "0b8f2c51-7f3e-4f6a-9a1d-2e4f5c6d7e8f"
	a := MaskID(id)
	b := MaskID(id)
	if a != b {
		t.Fatalf("mask is not stable: %s vs %s", a, b)
	}
	if strings.Contains(a, id) || !strings.HasPrefix(a, "u_") {
		t.Fatalf("mask leaks or is malformed: %s", a)
	}
	if MaskID("") != "unknown" {
		t.Fatalf("empty id should mask to unknown")
	}
	if MaskID("other-id") == a {
		t.Fatalf("different ids should not collide on short inputs")
	}
}

func TestMaskValuePassesNonUUIDs(t *testing.T) {
	if got := MaskValue("banner.publish"); got != "banner.publish" {
		t.Fatalf("non-uuid value was masked: %s", got)
	}
	id := "0b8f2c51-7f3e-4f6a-9a1d-2e4f5c6d7e8f"
	if got := MaskValue(id); got == id {
		t.Fatalf("uuid value was not masked")
	}
}
