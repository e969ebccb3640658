// Package topicdetect runs a sliding-window pass over the file asking
// the LLM oracle whether adjacent windows mark a topic change. It only
// activates when structural candidate coverage is thin, and its output
// feeds the candidate pool alongside structural and regex boundaries.
package topicdetect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/novelseg/novelseg/internal/chapter"
	"github.com/novelseg/novelseg/internal/oracle"
)

// WindowBytes is the sliding window size W.
const WindowBytes = 2 * 1024

// StrideBytes is the window stride S = W/2.
const StrideBytes = WindowBytes / 2

// CoverageThreshold: the detector only runs when
// candidates/expectedCount is below this ratio.
const CoverageThreshold = 1.2

// PeakThreshold is the minimum topic-change score treated as a peak.
const PeakThreshold = 0.5

// window is one sliding text window and its starting byte offset.
type window struct {
	start int64
	text  string
}

// ShouldActivate reports whether the Topic Change Detector should
// run: only when structural coverage is below CoverageThreshold.
func ShouldActivate(candidateCount, expectedCount int) bool {
	if expectedCount <= 0 {
		return true
	}
	return float64(candidateCount)/float64(expectedCount) < CoverageThreshold
}

// Detect slides WindowBytes-sized, StrideBytes-strided windows over
// text and asks the oracle for a topic-change score between each
// adjacent pair. Peaks above PeakThreshold become boundaries sourced
// chapter.SourceTopic. callBudget bounds the number of oracle calls
// issued, to cap cost on very large files.
func Detect(ctx context.Context, o oracle.Oracle, text string, callBudget int) ([]chapter.Boundary, error) {
	windows := slide(text)
	if len(windows) < 2 {
		return nil, nil
	}

	var boundaries []chapter.Boundary
	calls := 0

	for i := 0; i+1 < len(windows); i++ {
		if calls >= callBudget {
			break
		}
		calls++

		score, err := scorePair(ctx, o, windows[i], windows[i+1])
		if err != nil {
			return nil, fmt.Errorf("topicdetect: pair %d: %w", i, err)
		}
		if score <= PeakThreshold {
			continue
		}

		// Align the boundary to the start of the line the window lands
		// in, so it lives in the same line/byte space as every other
		// boundary source and collides cleanly with duplicates there.
		lineStart := lineStartAt(text, windows[i+1].start)
		lineText := firstLine(text[lineStart:])
		if lineText == "" {
			continue
		}

		boundaries = append(boundaries, chapter.Boundary{
			LineNum:    lineNumAt(text, lineStart),
			ByteOffset: lineStart,
			Text:       lineText,
			Score:      score,
			HasScore:   true,
			Source:     chapter.SourceTopic,
		})
	}

	return boundaries, nil
}

// lineNumAt returns the 0-indexed line number of byte offset off in
// text, counting newlines the same way splitter/structural number
// lines, so a topic-sourced boundary's LineNum is meaningful to
// SplitByBoundaries instead of always pointing at line 0.
func lineNumAt(text string, off int64) int {
	if off <= 0 {
		return 0
	}
	if off > int64(len(text)) {
		off = int64(len(text))
	}
	return strings.Count(text[:off], "\n")
}

// lineStartAt returns the byte offset of the start of the line
// containing off.
func lineStartAt(text string, off int64) int64 {
	if off <= 0 {
		return 0
	}
	if off > int64(len(text)) {
		off = int64(len(text))
	}
	return int64(strings.LastIndex(text[:off], "\n") + 1)
}

// slide computes the WindowBytes/StrideBytes sliding windows over text.
func slide(text string) []window {
	var windows []window
	size := int64(len(text))
	if size == 0 {
		return windows
	}

	for start := int64(0); start < size; start += StrideBytes {
		end := start + WindowBytes
		if end > size {
			end = size
		}
		windows = append(windows, window{start: start, text: text[start:end]})
		if end == size {
			break
		}
	}
	return windows
}

// scorePair asks the oracle for a single [0,1] topic-change score
// between two adjacent windows, defaulting to 0 (no detected change)
// when the response can't be parsed.
func scorePair(ctx context.Context, o oracle.Oracle, a, b window) (float64, error) {
	prompt := fmt.Sprintf(
		"Does the topic change between these two consecutive passages? Answer with a single number between 0 and 1.\n\nPassage A:\n%s\n\nPassage B:\n%s\n",
		a.text, b.text,
	)

	completion, err := o.Complete(ctx, prompt)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(completion), 64)
	if err != nil || v < 0 || v > 1 {
		return 0, nil
	}
	return v, nil
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}
