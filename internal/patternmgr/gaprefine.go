package patternmgr

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/novelseg/novelseg/internal/sampler"
)

// gap is one dynamic gap between two consecutive matches.
type gap struct {
	startOffset int
	endOffset   int
	size        int
}

// dynamicGaps computes adjacent match-pair byte distances exceeding
// max(average chapter size * 1.5, 50_000).
func dynamicGaps(offsets []int, fileSize int64, expectedCount int) []gap {
	if expectedCount <= 0 || len(offsets) < 2 {
		return nil
	}

	avgChapterBytes := float64(fileSize) / float64(expectedCount)
	threshold := avgChapterBytes * 1.5
	if threshold < 50_000 {
		threshold = 50_000
	}

	var gaps []gap
	for i := 1; i < len(offsets); i++ {
		size := offsets[i] - offsets[i-1]
		if float64(size) > threshold {
			gaps = append(gaps, gap{startOffset: offsets[i-1], endOffset: offsets[i], size: size})
		}
	}

	sort.Slice(gaps, func(i, j int) bool { return gaps[i].size > gaps[j].size })
	if len(gaps) > MaxGapsToAnalyze {
		gaps = gaps[:MaxGapsToAnalyze]
	}
	return gaps
}

// Refine ranks the largest dynamic gaps, samples each, and asks the
// oracle to either broaden the regex or enumerate titles found in that
// window. Each proposal is validated as in GeneratePattern and
// accepted only if it strictly increases the effective match count
// without exceeding expectedCount. Returns the best pattern observed,
// the trailing rejection streak length, and every close-duplicate pair
// the filter dropped for that pattern, for the caller to log.
func (m *Manager) Refine(ctx context.Context, s *sampler.Sampler, fullText string, pattern *regexp2.Regexp, expectedCount int) (*regexp2.Regexp, int, []DuplicatePair, error) {
	rawOffsets, err := countMatches(fullText, pattern)
	if err != nil {
		return pattern, 0, nil, fmt.Errorf("patternmgr: refine: %w", err)
	}
	offsets, dropped := filterCloseDuplicates(rawOffsets)

	gaps := dynamicGaps(offsets, s.Size(), expectedCount)
	if len(gaps) == 0 {
		return pattern, 0, dropped, nil
	}

	best := pattern
	bestCount := len(offsets)
	rejectionCount := 0

	for _, g := range gaps {
		window, err := s.ExtractAround(int64((g.startOffset+g.endOffset)/2), (g.endOffset-g.startOffset)/2+1)
		if err != nil {
			rejectionCount++
			continue
		}

		prompt := gapRefinePrompt(window.Text, best.String(), expectedCount)
		completion, err := m.oracle.Complete(ctx, prompt)
		if err != nil {
			rejectionCount++
			continue
		}

		candidate, err := compile(stripRawResponse(completion))
		if err != nil {
			rejectionCount++
			continue
		}

		n, err := effectiveMatchCount(fullText, candidate)
		if err != nil || n <= bestCount || n > expectedCount {
			rejectionCount++
			continue
		}

		best = candidate
		bestCount = n
		rejectionCount = 0
	}

	if best != pattern {
		dropped, err = closeDuplicatesFor(fullText, best)
		if err != nil {
			return best, rejectionCount, nil, fmt.Errorf("patternmgr: refine: close-duplicate scan: %w", err)
		}
	}

	return best, rejectionCount, dropped, nil
}

func gapRefinePrompt(window, currentPattern string, expectedCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The current chapter-header pattern is: %s\n", currentPattern)
	fmt.Fprintf(&b, "It misses chapter headers in the window below, out of an expected %d total chapters.\n", expectedCount)
	b.WriteString("Emit a single raw regular expression, broader than the current one, that also matches the headers in this window. Emit only the regex.\n\n")
	b.WriteString(window)
	return b.String()
}
