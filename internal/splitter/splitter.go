// Package splitter walks a decoded chapter file's text once and emits
// a dense sequence of chapter.Chapter records, either by matching a
// chapter-header pattern against every line or by cutting at an
// explicit, pre-validated set of boundaries. It works on text already
// held in memory, split into lines up front; it does not stream.
package splitter

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/novelseg/novelseg/internal/chapter"
)

// BracketPatternLength is the maximum code-point length of a header line
// eligible for the multi-line title merge rule.
const BracketPatternLength = 50

// MaxTitleLength bounds how much of a matched title may be stripped as a
// duplicate prefix of the chapter's first body line.
const MaxTitleLength = 100

// MaxPreludeBytes bounds how much pre-first-chapter text may be
// discarded. A prelude above this size is almost certainly a missed
// first chapter, so it is folded into the first chapter's body instead
// of being dropped.
const MaxPreludeBytes = 4 * 1024

// ErrInvalidBoundary reports a boundary set violating the chapter.Boundary
// invariants: an empty set, negative or non-increasing line numbers or
// byte offsets, or empty title text. The set's size is not checked
// against any expected chapter count. This is
// always a programming error in the caller that built the boundary set,
// never something produced by ordinary input.
var ErrInvalidBoundary = errors.New("splitter: invalid boundary set")

// line is one physical line of the decoded input, with its starting byte
// offset in that input and its content with the line terminator removed.
type line struct {
	text       string
	byteOffset int64
	blank      bool
}

// splitLines walks text once and returns every line together with its
// starting byte offset. Lines end at LF; for CRLF endings the trailing
// CR is dropped from text as well, but a lone CR is not treated as a
// line break.
func splitLines(text string) []line {
	var lines []line
	offset := int64(0)

	for len(text) > 0 {
		idx := strings.IndexByte(text, '\n')
		var raw string
		if idx == -1 {
			raw = text
			text = ""
		} else {
			raw = text[:idx]
			text = text[idx+1:]
		}

		content := strings.TrimSuffix(raw, "\r")
		lines = append(lines, line{
			text:       content,
			byteOffset: offset,
			blank:      strings.TrimSpace(content) == "",
		})

		offset += int64(len(raw))
		if idx != -1 {
			offset++
		}
	}

	return lines
}

// Split implements regex mode: it scans text line by line, treating a
// line as a chapter header whenever it matches pattern or appears
// verbatim in titleCandidates. Returns the emitted chapters, the
// discovered boundaries (one per header, after multi-line merging) and a
// reconciliation log recording any discarded prelude.
func Split(text string, pattern *regexp2.Regexp, titleCandidates []string) ([]chapter.Chapter, []chapter.Boundary, *chapter.Log, error) {
	candidateSet := make(map[string]bool, len(titleCandidates))
	for _, c := range titleCandidates {
		candidateSet[strings.TrimSpace(c)] = true
	}

	lines := splitLines(text)
	log := &chapter.Log{}

	type pendingChapter struct {
		title      string
		byteOffset int64
		lineNum    int
		body       []string
	}

	var chapters []chapter.Chapter
	var boundaries []chapter.Boundary
	var prelude []string
	var current *pendingChapter

	flush := func() {
		if current == nil {
			return
		}
		body := strings.Join(current.body, "\n")
		body = stripTitlePrefix(current.title, body)
		ch := chapter.New(len(chapters), current.title, "", body)
		chapters = append(chapters, ch)
	}

	isHeader := func(l line) (bool, error) {
		if l.blank {
			return false, nil
		}
		if candidateSet[strings.TrimSpace(l.text)] {
			return true, nil
		}
		matched, err := pattern.MatchString(l.text)
		if err != nil {
			return false, fmt.Errorf("splitter: pattern match on line %q: %w", l.text, err)
		}
		return matched, nil
	}

	for i := 0; i < len(lines); i++ {
		l := lines[i]

		header, err := isHeader(l)
		if err != nil {
			return nil, nil, nil, err
		}
		if !header {
			if current == nil {
				prelude = append(prelude, l.text)
			} else {
				current.body = append(current.body, l.text)
			}
			continue
		}

		title := strings.TrimSpace(l.text)
		lineNum := i
		var skipped []string

		// Multi-line title merge: a short header immediately followed
		// (skipping nothing but the header line itself) by another
		// header line is folded into one title and one boundary. Any
		// blank lines strictly between the two header lines are real
		// source bytes and must not vanish: they carry forward as the
		// lead-in of the merged chapter's body.
		if utf8.RuneCountInString(title) <= BracketPatternLength {
			next := nextNonBlank(lines, i+1)
			if next != -1 {
				nextHeader, err := isHeader(lines[next])
				if err != nil {
					return nil, nil, nil, err
				}
				if nextHeader {
					title = title + " | " + strings.TrimSpace(lines[next].text)
					for j := i + 1; j < next; j++ {
						skipped = append(skipped, lines[j].text)
					}
					i = next
				}
			}
		}

		flush()
		current = &pendingChapter{
			title:      title,
			byteOffset: l.byteOffset,
			lineNum:    lineNum,
			body:       skipped,
		}
		boundaries = append(boundaries, chapter.Boundary{
			LineNum:    lineNum,
			ByteOffset: l.byteOffset,
			Text:       title,
			Source:     chapter.SourceRegex,
		})
	}
	flush()

	if len(prelude) > 0 {
		text := strings.Join(prelude, "\n")
		switch {
		case strings.TrimSpace(text) == "":
			// Whitespace-only prelude is not worth an event.
		case len(text) > MaxPreludeBytes && len(chapters) > 0:
			first := chapters[0]
			chapters[0] = chapter.New(0, first.Title, first.Subtitle, text+"\n"+first.Body)
			log.Append("splitter", "keep-prelude", 0, 0, fmt.Sprintf("%d bytes of pre-first-chapter text exceed the %d-byte discard bound, folded into the first chapter body", len(text), MaxPreludeBytes))
		default:
			log.Append("splitter", "discard-prelude", 0, 0, fmt.Sprintf("%d bytes of pre-first-chapter text discarded", len(text)))
		}
	}

	return chapters, boundaries, log, nil
}

// nextNonBlank returns the index of the next non-blank line at or after
// from, or -1 if none remains.
func nextNonBlank(lines []line, from int) int {
	for i := from; i < len(lines); i++ {
		if !lines[i].blank {
			return i
		}
	}
	return -1
}

// stripTitlePrefix removes up to MaxTitleLength code points of title from
// the start of body, when title (trimmed) is itself a prefix of body.
func stripTitlePrefix(title, body string) string {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLength {
		return body
	}

	trimmedBody := strings.TrimLeft(body, "\n")
	if strings.HasPrefix(trimmedBody, title) {
		rest := strings.TrimPrefix(trimmedBody, title)
		return strings.TrimLeft(rest, "\n")
	}
	return body
}

// SplitByBoundaries implements boundary mode: boundaries must already
// satisfy the chapter.Boundary invariants (strictly increasing line
// numbers, non-empty text). The function performs a defensive validation
// pass and fails with ErrInvalidBoundary rather than silently tolerating
// a malformed set, since such a set can only arise from an internal bug.
// No pattern matching occurs; every line is assigned to the chapter
// whose boundary precedes it.
func SplitByBoundaries(text string, boundaries []chapter.Boundary) ([]chapter.Chapter, *chapter.Log, error) {
	if err := validateBoundaries(boundaries); err != nil {
		return nil, nil, err
	}

	lines := splitLines(text)
	log := &chapter.Log{}

	chapters := make([]chapter.Chapter, len(boundaries))
	for idx, b := range boundaries {
		end := len(lines)
		if idx+1 < len(boundaries) {
			end = boundaries[idx+1].LineNum
		}

		var bodyLines []string
		for ln := b.LineNum; ln < end && ln < len(lines); ln++ {
			bodyLines = append(bodyLines, lines[ln].text)
		}
		body := strings.Join(bodyLines, "\n")
		body = stripTitlePrefix(b.Text, body)

		if strings.TrimSpace(body) == "" {
			log.Append("splitter", "empty-body", idx, idx, fmt.Sprintf("boundary %d (%q) produced an empty chapter body", idx, b.Text))
		}

		chapters[idx] = chapter.New(idx, strings.TrimSpace(b.Text), "", body)
	}

	return chapters, log, nil
}

// validateBoundaries enforces the chapter.Boundary invariants:
// strictly increasing line numbers and byte offsets, and non-empty
// title text.
func validateBoundaries(boundaries []chapter.Boundary) error {
	if len(boundaries) == 0 {
		return fmt.Errorf("%w: empty boundary set", ErrInvalidBoundary)
	}

	for i, b := range boundaries {
		if b.LineNum < 0 || b.ByteOffset < 0 {
			return fmt.Errorf("%w: boundary %d has a negative line number or byte offset", ErrInvalidBoundary, i)
		}
		if strings.TrimSpace(b.Text) == "" {
			return fmt.Errorf("%w: boundary %d has empty text", ErrInvalidBoundary, i)
		}
		if i > 0 {
			prev := boundaries[i-1]
			if b.LineNum <= prev.LineNum {
				return fmt.Errorf("%w: boundary %d line number %d does not strictly increase over boundary %d's %d", ErrInvalidBoundary, i, b.LineNum, i-1, prev.LineNum)
			}
			if b.ByteOffset <= prev.ByteOffset {
				return fmt.Errorf("%w: boundary %d byte offset %d does not strictly increase over boundary %d's %d", ErrInvalidBoundary, i, b.ByteOffset, i-1, prev.ByteOffset)
			}
		}
	}

	return nil
}
