package patternmgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/novelseg/novelseg/internal/sampler"
)

// DirectAITitleSearch extracts up to UniformSampleCount uniform
// windows covering the whole file, chunked to ChunkBytes per call, and
// asks the oracle to enumerate lines that look like chapter titles,
// using existingMatches as few-shot examples. Each window's extraction
// is run through Consensus (ConsensusRuns oracle calls, keeping only
// lines that agree across at least ConsensusMinAgree of them) to
// suppress oracle variance before the results are de-duplicated,
// filtered against end-marker lexemes, and intersected with lines that
// actually appear verbatim in fullText.
func (m *Manager) DirectAITitleSearch(ctx context.Context, s *sampler.Sampler, fullText string, existingMatches []string) ([]string, error) {
	windows, err := s.UniformSamples(UniformSampleCount, ChunkBytes)
	if err != nil {
		return nil, fmt.Errorf("patternmgr: direct title search sampling: %w", err)
	}

	fileLines := make(map[string]bool)
	for _, line := range strings.Split(fullText, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			fileLines[line] = true
		}
	}

	seen := make(map[string]bool)
	var titles []string

	for _, w := range windows {
		extract := func(ctx context.Context) ([]string, error) {
			prompt := directSearchPrompt(w.Text, existingMatches)
			completion, err := m.oracle.Complete(ctx, prompt)
			if err != nil {
				return nil, fmt.Errorf("patternmgr: direct title search: %w", err)
			}
			return parseLines(completion), nil
		}

		agreed, err := m.Consensus(ctx, extract)
		if err != nil {
			return nil, err
		}

		for _, candidate := range agreed {
			if m.matchesEndMarker(candidate) {
				continue
			}
			if !fileLines[candidate] {
				continue
			}
			if seen[candidate] {
				continue
			}
			seen[candidate] = true
			titles = append(titles, candidate)
		}
	}

	return titles, nil
}

func directSearchPrompt(window string, existingMatches []string) string {
	var b strings.Builder
	b.WriteString("List every line in the text below that looks like a chapter title, one per line, verbatim, with no extra commentary.\n")
	if len(existingMatches) > 0 {
		b.WriteString("Known chapter titles from elsewhere in the same file, as examples of the style used here:\n")
		for _, ex := range existingMatches {
			b.WriteString("- ")
			b.WriteString(ex)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(window)
	return b.String()
}

func parseLines(completion string) []string {
	var out []string
	for _, line := range strings.Split(completion, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// BuildPatternFromExamples asks the oracle for a single regex
// matching every supplied title and nothing resembling an end marker,
// then validates it as GeneratePattern does. Returns ErrPatternUnusable
// if the oracle's answer does not validate.
func (m *Manager) BuildPatternFromExamples(ctx context.Context, titles []string) (*regexp2.Regexp, error) {
	if len(titles) == 0 {
		return nil, fmt.Errorf("%w: no example titles supplied", ErrPatternUnusable)
	}

	prompt := reverseSynthesisPrompt(titles)
	completion, err := m.oracle.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("patternmgr: reverse-regex synthesis: %w", err)
	}

	pattern, err := compile(stripRawResponse(completion))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPatternUnusable, err)
	}

	for _, title := range titles {
		matched, err := pattern.MatchString(title)
		if err != nil || !matched {
			return nil, fmt.Errorf("%w: synthesized pattern does not match example %q", ErrPatternUnusable, title)
		}
	}

	return pattern, nil
}

func reverseSynthesisPrompt(titles []string) string {
	var b strings.Builder
	b.WriteString("Emit a single raw regular expression, and nothing else, that matches every one of these chapter title lines and nothing resembling an end-of-work marker:\n\n")
	for _, t := range titles {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	return b.String()
}

// Consensus issues call ConsensusRuns times and keeps only result
// strings (after trimming) that appear in at least ConsensusMinAgree
// runs, in first-seen order. Used to suppress oracle variance on
// single-shot extraction tasks such as title-candidate extraction.
func (m *Manager) Consensus(ctx context.Context, call func(ctx context.Context) ([]string, error)) ([]string, error) {
	counts := make(map[string]int)
	var order []string

	for i := 0; i < ConsensusRuns; i++ {
		results, err := call(ctx)
		if err != nil {
			return nil, fmt.Errorf("patternmgr: consensus run %d: %w", i, err)
		}

		seenThisRun := make(map[string]bool)
		for _, r := range results {
			r = strings.TrimSpace(r)
			if r == "" || seenThisRun[r] {
				continue
			}
			seenThisRun[r] = true
			if counts[r] == 0 {
				order = append(order, r)
			}
			counts[r]++
		}
	}

	var agreed []string
	for _, r := range order {
		if counts[r] >= ConsensusMinAgree {
			agreed = append(agreed, r)
		}
	}
	return agreed, nil
}
