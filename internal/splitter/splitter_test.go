package splitter

import (
	"strings"
	"testing"

	"github.com/dlclark/regexp2"

	"github.com/novelseg/novelseg/internal/chapter"
)

func mustPattern(t *testing.T, pattern string) *regexp2.Regexp {
	t.Helper()
	re, err := regexp2.Compile(pattern, regexp2.Multiline)
	if err != nil {
		t.Fatalf("compile %q: %v", pattern, err)
	}
	return re
}

func TestSplitCleanNumberedChapters(t *testing.T) {
	text := "Prelude text before anything.\n" +
		"Chapter 1\n" +
		"First chapter body line one.\n" +
		"First chapter body line two.\n" +
		"Chapter 2\n" +
		"Second chapter body.\n"

	re := mustPattern(t, `^Chapter \d+$`)

	chapters, boundaries, log, err := Split(text, re, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
	if len(boundaries) != 2 {
		t.Fatalf("got %d boundaries, want 2", len(boundaries))
	}
	for i, c := range chapters {
		if c.CID != i {
			t.Errorf("chapter %d has cid %d", i, c.CID)
		}
	}
	if chapters[0].Title != "Chapter 1" {
		t.Errorf("chapter 0 title = %q", chapters[0].Title)
	}
	if !strings.Contains(chapters[1].Body, "Second chapter body") {
		t.Errorf("chapter 1 body = %q", chapters[1].Body)
	}
	if len(log.Events) != 1 {
		t.Fatalf("expected one discard-prelude event, got %d", len(log.Events))
	}
}

func TestSplitMergesMultiLineTitle(t *testing.T) {
	text := "I\n" +
		"HOW OUR HERO WAS BROUGHT UP\n" +
		"Body text for the first chapter.\n" +
		"II\n" +
		"WHAT HAPPENED NEXT\n" +
		"Body text for the second chapter.\n"

	re := mustPattern(t, `^[IVXLC]+$|^[A-Z ]{3,60}$`)

	chapters, boundaries, _, err := Split(text, re, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
	want := "I | HOW OUR HERO WAS BROUGHT UP"
	if chapters[0].Title != want {
		t.Errorf("chapter 0 title = %q, want %q", chapters[0].Title, want)
	}
	if boundaries[0].Text != want {
		t.Errorf("boundary 0 text = %q, want %q", boundaries[0].Text, want)
	}
}

func TestSplitMergesMultiLineTitlePreservesInterveningBlankLines(t *testing.T) {
	// A blank line between the two header fragments must not vanish:
	// it's a real source byte that belongs to the merged chapter's body.
	text := "I\n" +
		"\n" +
		"HOW OUR HERO WAS BROUGHT UP\n" +
		"Body text for the first chapter.\n" +
		"II\n" +
		"WHAT HAPPENED NEXT\n" +
		"Body text for the second chapter.\n"

	re := mustPattern(t, `^[IVXLC]+$|^[A-Z ]{3,60}$`)

	chapters, _, _, err := Split(text, re, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
	if !strings.Contains(chapters[0].Body, "Body text for the first chapter.") {
		t.Fatalf("chapter 0 body missing expected content: %q", chapters[0].Body)
	}
	// Reconstructing the source from titles + bodies must still account
	// for the blank line between "I" and "HOW OUR HERO WAS BROUGHT UP":
	// it should show up as leading whitespace in the first chapter's
	// body rather than being silently dropped.
	if !strings.HasPrefix(chapters[0].Body, "\n") {
		t.Errorf("chapter 0 body = %q, want a leading blank line carried over from between the merged header lines", chapters[0].Body)
	}
}

func TestSplitClassifiesChapterType(t *testing.T) {
	text := "Prologue\n" +
		"Opening body.\n" +
		"Chapter 1\n" +
		"Main body.\n" +
		"Epilogue\n" +
		"Closing body.\n"

	re := mustPattern(t, `^(Prologue|Chapter \d+|Epilogue)$`)

	chapters, _, _, err := Split(text, re, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chapters) != 3 {
		t.Fatalf("got %d chapters, want 3", len(chapters))
	}
	if chapters[0].ChapterType != chapter.Prologue {
		t.Errorf("chapter 0 type = %v, want Prologue", chapters[0].ChapterType)
	}
	if chapters[1].ChapterType != chapter.Main {
		t.Errorf("chapter 1 type = %v, want Main", chapters[1].ChapterType)
	}
	if chapters[2].ChapterType != chapter.Epilogue {
		t.Errorf("chapter 2 type = %v, want Epilogue", chapters[2].ChapterType)
	}
}

func TestSplitStripsTitlePrefixFromBody(t *testing.T) {
	text := "Chapter 1: The Beginning\n" +
		"Chapter 1: The Beginning continues right into the body text.\n"

	re := mustPattern(t, `^Chapter \d+: The Beginning$`)

	chapters, _, _, err := Split(text, re, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chapters) != 1 {
		t.Fatalf("got %d chapters, want 1", len(chapters))
	}
	if strings.HasPrefix(chapters[0].Body, "Chapter 1: The Beginning") {
		t.Errorf("body still carries title prefix: %q", chapters[0].Body)
	}
}

func TestSplitHonorsTitleCandidates(t *testing.T) {
	text := "Some Odd Header\n" +
		"Body one.\n" +
		"Another Odd Header\n" +
		"Body two.\n"

	re := mustPattern(t, `^\x00$`)

	chapters, _, _, err := Split(text, re, []string{"Some Odd Header", "Another Odd Header"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
}

func TestSplitByBoundariesYieldsExactCount(t *testing.T) {
	text := "Prelude.\n" +
		"Chapter One\n" +
		"First body.\n" +
		"Chapter Two\n" +
		"Second body.\n" +
		"Third body continued.\n"

	boundaries := []chapter.Boundary{
		{LineNum: 1, ByteOffset: 9, Text: "Chapter One", Source: chapter.SourceManual},
		{LineNum: 3, ByteOffset: 33, Text: "Chapter Two", Source: chapter.SourceManual},
	}

	chapters, _, err := SplitByBoundaries(text, boundaries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chapters) != len(boundaries) {
		t.Fatalf("got %d chapters, want %d", len(chapters), len(boundaries))
	}
	if !strings.Contains(chapters[1].Body, "Third body continued") {
		t.Errorf("chapter 1 body = %q", chapters[1].Body)
	}
}

func TestSplitByBoundariesRejectsUnsortedLineNumbers(t *testing.T) {
	boundaries := []chapter.Boundary{
		{LineNum: 5, ByteOffset: 10, Text: "B"},
		{LineNum: 2, ByteOffset: 20, Text: "A"},
	}

	_, _, err := SplitByBoundaries("a\nb\nc\nd\ne\nf\n", boundaries)
	if !strings.Contains(err.Error(), "invalid boundary set") {
		t.Fatalf("got %v, want invalid boundary set error", err)
	}
}

func TestSplitByBoundariesRejectsEmptyText(t *testing.T) {
	boundaries := []chapter.Boundary{
		{LineNum: 0, ByteOffset: 0, Text: "  "},
	}

	_, _, err := SplitByBoundaries("a\nb\n", boundaries)
	if err == nil {
		t.Fatalf("expected an error for empty boundary text")
	}
}

func TestSplitByBoundariesLogsEmptyBody(t *testing.T) {
	text := "Chapter One\nChapter Two\nBody.\n"

	boundaries := []chapter.Boundary{
		{LineNum: 0, ByteOffset: 0, Text: "Chapter One"},
		{LineNum: 1, ByteOffset: 12, Text: "Chapter Two"},
	}

	chapters, log, err := SplitByBoundaries(text, boundaries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chapters[0].Body != "" {
		t.Errorf("chapter 0 body = %q, want empty", chapters[0].Body)
	}
	if len(log.Events) != 1 {
		t.Fatalf("expected one empty-body event, got %d", len(log.Events))
	}
}

func TestSplitFoldsOversizedPreludeIntoFirstChapter(t *testing.T) {
	prelude := strings.Repeat("An untitled opening that runs on for pages and pages. ", 100)
	text := prelude + "\n" +
		"Chapter 1\n" +
		"First body.\n"

	re := mustPattern(t, `^Chapter \d+$`)

	chapters, _, log, err := Split(text, re, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chapters) != 1 {
		t.Fatalf("got %d chapters, want 1", len(chapters))
	}
	if !strings.Contains(chapters[0].Body, "An untitled opening") {
		t.Fatalf("oversized prelude was dropped instead of folded into the first chapter body")
	}

	kept := false
	for _, e := range log.Events {
		if e.Action == "keep-prelude" {
			kept = true
		}
		if e.Action == "discard-prelude" {
			t.Errorf("oversized prelude must not be logged as discarded")
		}
	}
	if !kept {
		t.Errorf("expected a keep-prelude event, got %+v", log.Events)
	}
}
