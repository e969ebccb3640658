// Package structural generates pattern-free chapter-header candidates
// from structural cues alone: line length, surrounding blank lines,
// terminal punctuation, bracketing characters and a closed time/place
// lexeme list. It never calls the oracle; its output feeds the AI
// Scorer and, when coverage is thin, the Topic Change Detector.
package structural

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/novelseg/novelseg/internal/chapter"
)

// MaxLineLength is the longest trimmed line length eligible for header
// candidacy.
const MaxLineLength = 60

// CoverageMultiplier caps candidate output at this multiple of the
// caller's expected chapter count, bounding downstream LLM cost.
const CoverageMultiplier = 5

// timePlaceLexemes is a closed list of lexemes that suggest a scene or
// time transition, a common chapter-header signal in serialized fiction.
var timePlaceLexemes = []string{
	"다음 날", "그날 밤", "한편", "며칠 후", "이튿날",
	"meanwhile", "the next day", "that night", "days later",
}

var bracketOpeners = []rune("{[<【(")

// sentenceEnders closes off a line as "ordinary prose" rather than a
// header candidate.
var sentenceEnders = []rune{'.', '!', '?', '"', '”', '。', '」'}

// dialogueContinuationPrefixes flags a line as a likely continuation of
// quoted dialogue, which structurally can't be a header even if short.
var dialogueContinuationPrefixes = []string{"\"", "“", "'", "—", "- "}

// Candidate is one structurally-derived header candidate, scored in
// [0,1] from the signals in the package doc.
type Candidate struct {
	LineNum    int
	ByteOffset int64
	Text       string
	Score      float64
}

// line mirrors splitter's internal line record; structural operates on
// its own copy to stay decoupled from the splitter package.
type line struct {
	text       string
	byteOffset int64
	blank      bool
}

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

// Analyze scans text and returns header candidates ranked by score,
// descending, capped at CoverageMultiplier * expectedCount.
func Analyze(text string, expectedCount int) []Candidate {
	lines := splitLines(text)

	var candidates []Candidate
	for i, l := range lines {
		trimmed := strings.TrimSpace(l.text)
		if trimmed == "" {
			continue
		}

		score := score(lines, i)
		if score <= 0 {
			continue
		}

		candidates = append(candidates, Candidate{
			LineNum:    i,
			ByteOffset: l.byteOffset,
			Text:       trimmed,
			Score:      score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	limit := CoverageMultiplier * expectedCount
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return candidates
}

// score computes the [0,1] structural header-likeness of lines[i],
// each signal contributing a fixed weight.
func score(lines []line, i int) float64 {
	l := lines[i]
	trimmed := strings.TrimSpace(l.text)

	if isDialogueContinuation(trimmed) {
		return 0
	}

	var s float64

	if utf8.RuneCountInString(trimmed) <= MaxLineLength {
		s += 0.3
	}

	if precededByBlank(lines, i) || followedByBlank(lines, i) {
		s += 0.25
	}

	if !endsWithSentencePunctuation(trimmed) || startsWithBracket(trimmed) {
		s += 0.25
	}

	if containsTimePlaceLexeme(trimmed) {
		s += 0.2
	}

	if s > 1 {
		s = 1
	}
	return s
}

func precededByBlank(lines []line, i int) bool {
	return i > 0 && lines[i-1].blank
}

func followedByBlank(lines []line, i int) bool {
	return i+1 < len(lines) && lines[i+1].blank
}

func endsWithSentencePunctuation(s string) bool {
	if s == "" {
		return false
	}
	last := []rune(s)
	r := last[len(last)-1]
	for _, ender := range sentenceEnders {
		if r == ender {
			return true
		}
	}
	return false
}

func startsWithBracket(s string) bool {
	if s == "" {
		return false
	}
	r := []rune(s)[0]
	for _, b := range bracketOpeners {
		if r == b {
			return true
		}
	}
	return false
}

func containsTimePlaceLexeme(s string) bool {
	lower := strings.ToLower(s)
	for _, lex := range timePlaceLexemes {
		if strings.Contains(lower, strings.ToLower(lex)) {
			return true
		}
	}
	return false
}

func isDialogueContinuation(s string) bool {
	for _, prefix := range dialogueContinuationPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// ToBoundaries converts candidates into chapter.Boundary values sourced
// from the structural analyzer, preserving their score.
func ToBoundaries(candidates []Candidate) []chapter.Boundary {
	boundaries := make([]chapter.Boundary, len(candidates))
	for i, c := range candidates {
		boundaries[i] = chapter.Boundary{
			LineNum:    c.LineNum,
			ByteOffset: c.ByteOffset,
			Text:       c.Text,
			Score:      c.Score,
			HasScore:   true,
			Source:     chapter.SourceStructural,
		}
	}
	return boundaries
}
