package catalog

import (
	"regexp"
	"testing"
)

func TestNewRoomCodeIsSixHexChars(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{6}$`)
	seen := map[string]struct{}{}
	for i := 0; i < 20; i++ {
		code, err := NewRoomCode()
		if err != nil {
			t.Fatalf("NewRoomCode() error = %v", err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("NewRoomCode() = %q", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("NewRoomCode() produced %d distinct codes", len(seen))
	}
}
