package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		path string
		want Format
	}{
		{"book.pdf", PDF},
		{"book.PDF", PDF},
		{"book.docx", DOCX},
		{"book.odt", ODT},
		{"book.html", HTML},
		{"book.htm", HTML},
		{"book.epub", EPUB},
		{"book.txt", Text},
		{"book.unknownext", Text},
		{"book", Text},
	}

	for _, c := range cases {
		if got := DetectFormat(c.path); got != c.want {
			t.Errorf("DetectFormat(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestMimeFor(t *testing.T) {
	cases := []struct {
		format Format
		want   string
	}{
		{DOCX, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{ODT, "application/vnd.oasis.opendocument.text"},
		{HTML, "text/html"},
		{EPUB, "application/epub+zip"},
		{Text, "text/plain"},
	}

	for _, c := range cases {
		if got := mimeFor(c.format); got != c.want {
			t.Errorf("mimeFor(%q) = %q, want %q", c.format, got, c.want)
		}
	}
}

func TestNormalizePassesPlainTextThrough(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "chapter.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := Converter{}.Normalize(context.Background(), src, dir)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got != src {
		t.Fatalf("Normalize(text) = %q, want unchanged source path %q", got, src)
	}
}
