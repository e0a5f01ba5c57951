package vc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestManagerUnknownModel(t *testing.T) {
	m := NewManager(t.TempDir(), nil)

	_, err := m.VoiceModel(context.Background(), "missing")
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err = %v, want ErrModelNotFound", err)
	}
}

func TestManagerRejectsPathTraversal(t *testing.T) {
	m := NewManager(t.TempDir(), nil)

	for _, name := range []string{"", "../etc", "a/b"} {
		_, err := m.VoiceModel(context.Background(), name)
		if !errors.Is(err, ErrModelNotFound) {
			t.Fatalf("name %q: err = %v, want ErrModelNotFound", name, err)
		}
	}
}

func TestManagerBrokenBundleIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "alice"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	m := NewManager(dir, nil)

	_, err := m.VoiceModel(context.Background(), "alice")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestManagerList(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"bob", "alice"} {
		bundle := filepath.Join(dir, name)
		if err := os.MkdirAll(bundle, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}

		if err := os.WriteFile(filepath.Join(bundle, "config.json"), []byte("{}"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	// Directories without a config and stray files are not bundles.
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m := NewManager(dir, nil)

	names, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if len(names) != 2 || names[0] != "alice" || names[1] != "bob" {
		t.Fatalf("List = %v, want [alice bob]", names)
	}
}
