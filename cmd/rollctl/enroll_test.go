package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImageIDFor(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"plain", "ada.png", "12_ada"},
		{"spaces and unicode", "Ада Lovelace (1).JPG", "12_Lovelace_1"},
		{"keeps dots and dashes", "ada.side-view.jpeg", "12_ada.side-view"},
		{"nothing usable", "ääää.png", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := imageIDFor(12, tt.file); got != tt.want {
				t.Errorf("imageIDFor(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}

func TestImageIDFor_Truncates(t *testing.T) {
	got := imageIDFor(1, strings.Repeat("a", 300)+".png")
	if len(got) != 128 || !strings.HasPrefix(got, "1_aaa") {
		t.Errorf("got %q (len %d)", got, len(got))
	}
}

func TestImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.JPG", "a.png", "c.jpeg", "notes.txt", "d.gif"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := imageFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	if got, want := strings.Join(names, ","), "a.png,b.JPG,c.jpeg"; got != want {
		t.Errorf("files = %s, want %s", got, want)
	}

	if _, err := imageFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}
