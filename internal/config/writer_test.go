package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor_issue.yml")

	if err := os.WriteFile(path, []byte("options:\n"), 0o640); err != nil {
		t.Fatalf("seed template: %v", err)
	}

	data := []byte("options:\n  - label: \"a (A)\"\n    value: \"a\"\n")
	if err := WriteTemplate(path, data); err != nil {
		t.Fatalf("WriteTemplate returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat template: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o640 {
		t.Fatalf("expected perms 0640 got %v", perm)
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read template: %v", err)
	}
	if string(written) != string(data) {
		t.Fatalf("expected template contents %q got %q", string(data), string(written))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, found %d entries", len(entries))
	}
}

func TestWriteTemplateMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "absent.yml")

	if err := WriteTemplate(path, []byte("x")); err == nil {
		t.Fatalf("expected error for missing template")
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("expected no file created")
	}
}
