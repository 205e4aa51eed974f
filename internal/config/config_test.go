package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tok.proj")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
# project manifest
name = "demo"
entry = "main.tok"
`)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "demo" || m.Entry != "main.tok" {
		t.Fatalf("unexpected manifest %+v", m)
	}
}

func TestMissingEntry(t *testing.T) {
	path := writeManifest(t, `name = "demo"`)
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected missing entry error")
	}
}

func TestUnquotedValue(t *testing.T) {
	path := writeManifest(t, `entry = main.tok`)
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected quoting error")
	}
}

func TestUnknownKey(t *testing.T) {
	path := writeManifest(t, `entry = "m.tok"
color = "blue"`)
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected unknown key error")
	}
}
