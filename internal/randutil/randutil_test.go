package randutil

import (
	"strings"
	"testing"
)

func TestRandomSuffix(t *testing.T) {
	a := RandomSuffix()
	b := RandomSuffix()

	if len(a) != 8 {
		t.Errorf("len = %d, want 8", len(a))
	}
	if a == b {
		t.Errorf("two suffixes collided: %q", a)
	}
}

func TestRunID(t *testing.T) {
	a := RunID()
	b := RunID()

	if a == b {
		t.Errorf("two run ids collided: %q", a)
	}
	// 20060102-150405-<8 hex chars>
	parts := strings.Split(a, "-")
	if len(parts) != 3 {
		t.Fatalf("RunID %q has %d parts, want 3", a, len(parts))
	}
	if len(parts[0]) != 8 || len(parts[1]) != 6 || len(parts[2]) != 8 {
		t.Errorf("RunID %q part lengths = %d/%d/%d, want 8/6/8",
			a, len(parts[0]), len(parts[1]), len(parts[2]))
	}
}
