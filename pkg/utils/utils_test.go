package utils

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGeneratePeerID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GeneratePeerID()
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("GeneratePeerID() = %q is not a UUID: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("GeneratePeerID() returned duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestGenerateRequestID(t *testing.T) {
	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	if !strings.HasPrefix(id1, "req_") {
		t.Errorf("GenerateRequestID() = %q, want req_ prefix", id1)
	}
	if len(id1) != len("req_")+16 {
		t.Errorf("GenerateRequestID() length = %d, want %d", len(id1), len("req_")+16)
	}
	if id1 == id2 {
		t.Error("GenerateRequestID() should return unique IDs")
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"normal string", "hello world", "hello world"},
		{"with control chars", "hello\x00world", "helloworld"},
		{"keeps newlines", "line1\nline2", "line1\nline2"},
		{"with spaces", "  hello  ", "hello"},
		{"only control", "\x00\x01", ""},
		{"keeps tabs", "a\tb", "a\tb"},
		{"drops escape", "bell\x07 \x1b[31mred", "bell [31mred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeString(tt.input); got != tt.want {
				t.Errorf("SanitizeString() = %q, want %q", got, tt.want)
			}
		})
	}
}
