package config

import "testing"

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1024", 1024},
		{"1KiB", 1024},
		{"512 kib", 512 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"1.5MB", int64(1.5 * 1000 * 1000)},
		{"", 4096},
	}

	for _, tt := range tests {
		got, err := ParseSize(tt.input, 4096)
		if err != nil {
			t.Fatalf("ParseSize(%q) returned error: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Fatalf("ParseSize(%q) = %d want %d", tt.input, got, tt.expected)
		}
	}
}

func TestParseSizeRejectsGarbage(t *testing.T) {
	for _, input := range []string{"lots", "-1", "-2MiB", "1.2.3KiB"} {
		if _, err := ParseSize(input, 0); err == nil {
			t.Fatalf("ParseSize(%q) expected error", input)
		}
	}
}
