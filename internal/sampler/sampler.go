// Package sampler extracts bounded, line-aligned windows from the
// decoded text of a novel file: head/middle/tail, a radius around an
// arbitrary byte offset, and k uniform strided windows across the
// whole text. All offsets are byte offsets into the decoded (UTF-8)
// text — the same offset space the pattern matcher, splitter and
// optimizer work in — never raw-file offsets, which diverge from
// decoded ones for every legacy CJK encoding this system ingests.
package sampler

import (
	"fmt"
	"os"
	"strings"

	"github.com/novelseg/novelseg/internal/encoding"
)

// DefaultWindowBytes is the default bound for head/middle/tail windows.
const DefaultWindowBytes = 20 * 1024

// Window is a line-aligned slice of decoded text.
type Window struct {
	StartByte int64
	EndByte   int64
	Text      string
}

// Sampler serves windows out of one file's decoded text.
type Sampler struct {
	text string
	size int64
}

// Open reads and decodes the file at path using the given encoding and
// returns a Sampler over the decoded text. The encoding must already
// be known (callers run encoding.Detect first).
func Open(path string, enc encoding.Name) (*Sampler, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// Decode errors degrade to a UTF-8 fallback inside DecodeToUTF8;
	// the returned error is diagnostic only.
	text, _ := encoding.DecodeToUTF8(raw, enc)

	return FromText(text), nil
}

// FromText returns a Sampler over already-decoded text. Callers that
// hold the decoded file (the Runner does) use this to guarantee the
// sampler's offsets and theirs are the same space.
func FromText(text string) *Sampler {
	return &Sampler{text: text, size: int64(len(text))}
}

// Size returns the decoded text size in bytes.
func (s *Sampler) Size() int64 {
	return s.size
}

// HeadMiddleTail returns three windows, each bounded to windowBytes and
// aligned to line breaks: the start of the text, a window centered on
// its midpoint, and its end.
func (s *Sampler) HeadMiddleTail(windowBytes int) (head, middle, tail Window, err error) {
	if windowBytes <= 0 {
		windowBytes = DefaultWindowBytes
	}

	head = s.window(0, int64(windowBytes))

	midStart := s.size/2 - int64(windowBytes)/2
	if midStart < 0 {
		midStart = 0
	}
	middle = s.window(midStart, midStart+int64(windowBytes))

	tailStart := s.size - int64(windowBytes)
	if tailStart < 0 {
		tailStart = 0
	}
	tail = s.window(tailStart, s.size)

	return head, middle, tail, nil
}

// ExtractAround returns up to radius bytes on each side of byteOffset,
// line-aligned.
func (s *Sampler) ExtractAround(byteOffset int64, radius int) (Window, error) {
	start := byteOffset - int64(radius)
	if start < 0 {
		start = 0
	}
	end := byteOffset + int64(radius)
	if end > s.size {
		end = s.size
	}

	return s.window(start, end), nil
}

// UniformSamples returns k windows, each up to windowBytes, taken at
// equal byte-strides across the text.
func (s *Sampler) UniformSamples(k int, windowBytes int) ([]Window, error) {
	if k <= 0 {
		return nil, nil
	}
	if windowBytes <= 0 {
		windowBytes = DefaultWindowBytes
	}

	stride := s.size / int64(k)
	if stride <= 0 {
		stride = s.size
	}

	windows := make([]Window, 0, k)
	for i := 0; i < k; i++ {
		start := int64(i) * stride
		if start >= s.size {
			break
		}
		end := start + int64(windowBytes)
		if end > s.size {
			end = s.size
		}

		windows = append(windows, s.window(start, end))
	}

	return windows, nil
}

// window slices [start, end) out of the text with both bounds nudged
// forward to line starts, so a window never splits a line. start stays
// put at 0 or when it already sits on a line start.
func (s *Sampler) window(start, end int64) Window {
	if start < 0 {
		start = 0
	}
	if end > s.size {
		end = s.size
	}
	if end < start {
		end = start
	}

	alignedStart := s.alignForward(start)
	alignedEnd := s.alignForward(end)
	if alignedEnd < alignedStart {
		alignedEnd = alignedStart
	}

	return Window{
		StartByte: alignedStart,
		EndByte:   alignedEnd,
		Text:      s.text[alignedStart:alignedEnd],
	}
}

// alignForward advances offset to the byte immediately after the next
// newline at or after offset, unless offset is 0, already on a line
// start, or at the end of the text. It never looks backward so that
// repeated windows never overlap beyond their requested bounds.
func (s *Sampler) alignForward(offset int64) int64 {
	if offset <= 0 {
		return 0
	}
	if offset >= s.size {
		return s.size
	}
	if s.text[offset-1] == '\n' {
		return offset
	}

	idx := strings.IndexByte(s.text[offset:], '\n')
	if idx == -1 {
		return s.size
	}
	return offset + int64(idx) + 1
}
