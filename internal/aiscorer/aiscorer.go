// Package aiscorer assigns a chapter-header likelihood in [0,1] to each
// structural candidate, by asking the LLM oracle about a small context
// window around the candidate line. Calls are batched to bound prompt
// count, and any unparseable or missing response degrades to a neutral
// score rather than failing the run.
package aiscorer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/novelseg/novelseg/internal/oracle"
	"github.com/novelseg/novelseg/internal/structural"
)

// ContextLines is how many lines of surrounding text are shown to the
// oracle on each side of a candidate.
const ContextLines = 5

// BatchSize is the maximum number of candidates folded into a single
// prompt.
const BatchSize = 10

// NeutralScore is assigned when the oracle's response for a candidate
// is missing or cannot be parsed as a number in [0,1].
const NeutralScore = 0.5

// SkipAboveCandidates is the hard cap on structural candidate count
// above which scoring is skipped entirely and structural scores are
// used directly, to bound oracle cost on pathological files.
const SkipAboveCandidates = 200

// Scored pairs a structural candidate with its AI-assigned score.
type Scored struct {
	Candidate structural.Candidate
	Score     float64
	Warned    bool
}

// Score assigns an AI likelihood to every candidate, using lines (the
// full decoded file split on "\n", used only to build context windows)
// to show the oracle ContextLines of text on each side. When
// len(candidates) exceeds SkipAboveCandidates, every candidate's
// structural score is reused unchanged and the oracle is never called.
func Score(ctx context.Context, o oracle.Oracle, lines []string, candidates []structural.Candidate) ([]Scored, error) {
	if len(candidates) > SkipAboveCandidates {
		scored := make([]Scored, len(candidates))
		for i, c := range candidates {
			scored[i] = Scored{Candidate: c, Score: c.Score}
		}
		return scored, nil
	}

	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		scored[i] = Scored{Candidate: c, Score: NeutralScore, Warned: true}
	}

	for start := 0; start < len(candidates); start += BatchSize {
		end := start + BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		prompt := buildPrompt(lines, batch)
		completion, err := o.Complete(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("aiscorer: batch %d-%d: %w", start, end, err)
		}

		values := parseScores(completion, len(batch))
		for j, v := range values {
			if v == nil {
				continue
			}
			scored[start+j].Score = *v
			scored[start+j].Warned = false
		}
	}

	return scored, nil
}

// buildPrompt assembles one prompt covering every candidate in batch,
// each with its ContextLines-line window, asking for one [0,1] score
// per line in order.
func buildPrompt(lines []string, batch []structural.Candidate) string {
	var b strings.Builder
	b.WriteString("For each numbered candidate line below, answer with a single real number between 0 and 1 indicating how likely it is a chapter header, one per line, in order.\n\n")

	for i, c := range batch {
		fmt.Fprintf(&b, "Candidate %d:\n", i+1)
		b.WriteString(contextWindow(lines, c.LineNum))
		b.WriteString("\n\n")
	}

	return b.String()
}

// contextWindow renders ContextLines lines before and after lineNum,
// marking the candidate line itself.
func contextWindow(lines []string, lineNum int) string {
	lo := lineNum - ContextLines
	if lo < 0 {
		lo = 0
	}
	hi := lineNum + ContextLines
	if hi >= len(lines) {
		hi = len(lines) - 1
	}

	var b strings.Builder
	for i := lo; i <= hi && i < len(lines); i++ {
		marker := "  "
		if i == lineNum {
			marker = "> "
		}
		b.WriteString(marker)
		b.WriteString(lines[i])
		b.WriteString("\n")
	}
	return b.String()
}

// parseScores extracts up to want float values from completion, one
// per non-blank line, in order. A missing or unparseable entry is left
// nil so the caller can keep the candidate's neutral fallback score.
func parseScores(completion string, want int) []*float64 {
	values := make([]*float64, want)

	lines := strings.Split(completion, "\n")
	idx := 0
	for _, line := range lines {
		if idx >= want {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		line = strings.TrimPrefix(line, strconv.Itoa(idx+1)+".")
		line = strings.TrimPrefix(line, strconv.Itoa(idx+1)+":")
		line = strings.TrimSpace(line)

		v, err := strconv.ParseFloat(line, 64)
		if err == nil && v >= 0 && v <= 1 {
			values[idx] = &v
		}
		idx++
	}

	return values
}
