package packager

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/novelseg/novelseg/internal/chapter"
)

func TestWriteProducesValidArchiveWithExpectedEntries(t *testing.T) {
	chapters := []chapter.Chapter{
		chapter.New(0, "The Beginning", "", "He woke up.\nIt was morning."),
		chapter.New(1, "The End", "A subtitle", "Nothing more to say."),
	}

	var buf bytes.Buffer
	meta := Metadata{Title: "Solo Leveling", Author: "Chugong", Series: "Solo Leveling", Volume: 3}

	if err := Write(&buf, meta, chapters); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("archive is not a valid zip: %v", err)
	}

	names := make(map[string]*zip.File)
	for _, f := range zr.File {
		names[f.Name] = f
	}

	for _, want := range []string{
		"mimetype",
		"META-INF/container.xml",
		"OEBPS/content.opf",
		"OEBPS/toc.ncx",
		"OEBPS/chapter000.xhtml",
		"OEBPS/chapter001.xhtml",
	} {
		if _, ok := names[want]; !ok {
			t.Fatalf("missing archive entry %q", want)
		}
	}

	if zr.File[0].Name != "mimetype" {
		t.Fatalf("first entry = %q, want mimetype first", zr.File[0].Name)
	}
	if zr.File[0].Method != zip.Store {
		t.Fatalf("mimetype entry must be stored, not compressed")
	}
}

func TestWriteEscapesChapterContent(t *testing.T) {
	chapters := []chapter.Chapter{
		chapter.New(0, "Tom & Jerry <tag>", "", "A line with <brackets> & ampersands."),
	}

	var buf bytes.Buffer
	if err := Write(&buf, Metadata{Title: "t"}, chapters); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("archive is not a valid zip: %v", err)
	}

	var content string
	for _, f := range zr.File {
		if f.Name == "OEBPS/chapter000.xhtml" {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("open chapter entry: %v", err)
			}
			defer rc.Close()
			var sb strings.Builder
			buf := make([]byte, 512)
			for {
				n, err := rc.Read(buf)
				sb.Write(buf[:n])
				if err != nil {
					break
				}
			}
			content = sb.String()
		}
	}

	if content == "" {
		t.Fatalf("chapter000.xhtml was empty or missing")
	}
	if strings.Contains(content, "<tag>") || strings.Contains(content, "Tom & Jerry <tag>") {
		t.Fatalf("expected chapter title to be XML-escaped, got: %s", content)
	}
	if !strings.Contains(content, "&amp;") {
		t.Fatalf("expected ampersand to be escaped as &amp;, got: %s", content)
	}
}

func TestSeriesMetaOmittedWhenNoSeries(t *testing.T) {
	meta := seriesMeta(Metadata{Title: "Standalone"})
	if meta != nil {
		t.Fatalf("expected nil series meta for a book with no series, got %v", meta)
	}
}

func TestSeriesMetaIncludesVolumeIndex(t *testing.T) {
	meta := seriesMeta(Metadata{Series: "Tower of God", Volume: 3})
	if len(meta) != 2 {
		t.Fatalf("len(meta) = %d, want 2", len(meta))
	}
	if meta[1].Content != "3" {
		t.Fatalf("series_index content = %q, want %q", meta[1].Content, "3")
	}
}
