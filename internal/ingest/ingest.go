// Package ingest normalizes non-plain-text submissions
// (epub/docx/pdf/html) into the plain text stream the segmentation
// core expects, before internal/runner ever opens the file. It is
// purely an external collaborator: the core itself never imports this
// package.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv/v2"

	"github.com/novelseg/novelseg/foundation/docling"
)

// Format is a recognized non-plain-text submission format.
type Format string

const (
	PDF  Format = "pdf"
	DOCX Format = "docx"
	ODT  Format = "odt"
	HTML Format = "html"
	EPUB Format = "epub"
	Text Format = "txt"
)

// DetectFormat maps a file extension to a Format. Unknown extensions
// are treated as already-plain-text, since that is the core's native
// input and the safest default.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return PDF
	case ".docx":
		return DOCX
	case ".odt":
		return ODT
	case ".html", ".htm":
		return HTML
	case ".epub":
		return EPUB
	default:
		return Text
	}
}

// Converter normalizes a single non-plain-text submission to a plain
// text file at dstPath, returning the path the core should be pointed
// at (dstPath itself, or srcPath unchanged for already-plain-text
// input).
type Converter struct {
	// DoclingHost, if set, is used instead of docconv for HTML/EPUB
	// conversion — docling runs those through a markdown-producing
	// conversion service rather than docconv's bundled parsers, which
	// is the better fit for markup-heavy sources (docconv's ConvertHTML
	// strips structure docling preserves as markdown headings, which
	// internal/structural and internal/patternmgr can use as chapter-
	// header signal).
	DoclingHost string
}

// Normalize converts srcPath into a plain text file under dstDir (named
// after srcPath's base name with a .txt extension) and returns its
// path. For Text input it returns srcPath unchanged without copying.
func (c Converter) Normalize(ctx context.Context, srcPath, dstDir string) (string, error) {
	format := DetectFormat(srcPath)
	if format == Text {
		return srcPath, nil
	}

	text, err := c.convert(ctx, srcPath, format)
	if err != nil {
		return "", fmt.Errorf("ingest: convert %s: %w", srcPath, err)
	}

	dstPath := filepath.Join(dstDir, strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))+".txt")
	if err := os.WriteFile(dstPath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("ingest: write %s: %w", dstPath, err)
	}

	return dstPath, nil
}

func (c Converter) convert(ctx context.Context, srcPath string, format Format) (string, error) {
	switch format {
	case PDF:
		return convertPDF(srcPath)
	case DOCX, ODT:
		return convertGeneric(srcPath, format)
	case HTML, EPUB:
		if c.DoclingHost != "" {
			return docling.New(c.DoclingHost).ConvertFile(ctx, srcPath, map[string]string{"to_formats": "md"})
		}
		return convertGeneric(srcPath, format)
	default:
		return "", fmt.Errorf("ingest: unsupported format %q", format)
	}
}

func convertPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	text, _, err := docconv.ConvertPDF(f)
	if err != nil {
		return "", fmt.Errorf("docconv convertpdf: %w", err)
	}

	return text, nil
}

// convertGeneric dispatches docx/odt/html/epub submissions through
// docconv's mime-sniffing Convert entry point.
func convertGeneric(path string, format Format) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	mimeType := mimeFor(format)

	resp, err := docconv.Convert(f, mimeType, true)
	if err != nil {
		return "", fmt.Errorf("docconv convert: %w", err)
	}

	return resp.Body, nil
}

func mimeFor(format Format) string {
	switch format {
	case DOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ODT:
		return "application/vnd.oasis.opendocument.text"
	case HTML:
		return "text/html"
	case EPUB:
		return "application/epub+zip"
	default:
		return "text/plain"
	}
}
