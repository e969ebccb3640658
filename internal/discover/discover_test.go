package discover

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestWalkFindsRecognizedExtensionsOnly(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}

	write("chapter-one.txt", "hello world")
	write("chapter-two.epub", "not a real epub but still recognized by extension")
	write("notes.md", "should be ignored")
	write("README", "should be ignored")

	candidates, err := Walk(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("len(candidates) = %d, want 2: %+v", len(candidates), candidates)
	}

	if candidates[0].Path != filepath.Join(dir, "chapter-one.txt") {
		t.Fatalf("candidates[0].Path = %q, want chapter-one.txt (sorted first)", candidates[0].Path)
	}
	if candidates[1].Path != filepath.Join(dir, "chapter-two.epub") {
		t.Fatalf("candidates[1].Path = %q, want chapter-two.epub", candidates[1].Path)
	}

	for _, c := range candidates {
		if !c.Changed {
			t.Fatalf("candidate %q should be Changed when store is nil", c.Path)
		}
		if c.ContentHash == "" {
			t.Fatalf("candidate %q missing ContentHash", c.Path)
		}
		if c.SizeBytes == 0 {
			t.Fatalf("candidate %q has zero SizeBytes", c.Path)
		}
	}
}

func TestWalkEmptyDirectory(t *testing.T) {
	dir := t.TempDir()

	candidates, err := Walk(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("len(candidates) = %d, want 0", len(candidates))
	}
}

func TestHashFileIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("same content"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	a, err := hashFile(path)
	if err != nil {
		t.Fatalf("hashFile returned error: %v", err)
	}
	b, err := hashFile(path)
	if err != nil {
		t.Fatalf("hashFile returned error: %v", err)
	}
	if a.ContentHash != b.ContentHash {
		t.Fatalf("expected identical content to hash identically: %q vs %q", a.ContentHash, b.ContentHash)
	}
}
