package logging

import (
	"log"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitReadTailClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	Init(path)
	t.Cleanup(Shutdown)

	for i := 0; i < 5; i++ {
		log.Printf("[test] line %d", i)
	}

	tail, err := ReadTail(2)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	lines := strings.Split(tail, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), tail)
	}
	if !strings.HasSuffix(lines[1], "[test] line 4") {
		t.Errorf("last line = %q", lines[1])
	}

	if err := Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	tail, err = ReadTail(10)
	if err != nil {
		t.Fatalf("ReadTail after Clear: %v", err)
	}
	if tail != "" {
		t.Errorf("tail after Clear = %q, want empty", tail)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain/path.txt", "plain/path.txt"},
		{"evil\n[shell] fake", "evil [shell] fake"},
		{"a\r\tb", "a  b"},
		{"bell\x07del\x7f", "belldel"},
		{"héllo", "héllo"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
